package version

import "fmt"

// Set through -ldflags at release time.
var (
	CLIName    = "deployctl"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

func UserAgent() string {
	return CLIName + "/" + CLIVersion
}
