package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Mutating    bool            `json:"mutating,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Inherited   []FlagSchema    `json:"inherited_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// Options tunes what Build includes.
type Options struct {
	// Inherited adds persistent flags from parent commands to the selected command only.
	Inherited bool
	// Mutating marks commands that change remote state.
	Mutating func(commandPath string) bool
}

func Build(root *cobra.Command, commandPath string, opts Options) (CommandSchema, error) {
	cmd := root
	if strings.TrimSpace(commandPath) != "" {
		for _, p := range strings.Fields(strings.TrimSpace(commandPath)) {
			next := findChild(cmd, p)
			if next == nil {
				return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
			}
			cmd = next
		}
	}
	s := serialize(root, cmd, opts)
	if opts.Inherited {
		s.Inherited = collect(cmd.InheritedFlags())
	}
	return s, nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || contains(c.Aliases, name) {
			return c
		}
	}
	return nil
}

func serialize(root, cmd *cobra.Command, opts Options) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   collect(cmd.NonInheritedFlags()),
	}
	if opts.Mutating != nil {
		s.Mutating = opts.Mutating(relativePath(root, cmd))
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(root, sub, opts))
	}
	return s
}

func relativePath(root, cmd *cobra.Command) string {
	return strings.TrimSpace(strings.TrimPrefix(cmd.CommandPath(), root.Name()))
}

func collect(set *pflag.FlagSet) []FlagSchema {
	items := []FlagSchema{}
	set.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	return items
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
