package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An entry allows the command
// it names and every subcommand below it, so "vars" covers "vars get" and "vars set".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if entry == "*" || entry == normPath || strings.HasPrefix(normPath, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// Mutating reports whether a command changes state outside the local machine.
func Mutating(commandPath string) bool {
	switch normalize(commandPath) {
	case "deploy", "verify run":
		return true
	default:
		return false
	}
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
