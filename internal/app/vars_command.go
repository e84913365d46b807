package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/logging"
	"github.com/ggonzalez94/deployctl/internal/model"
	"github.com/ggonzalez94/deployctl/internal/secrets"
)

func (s *runtimeState) newVarsCommand() *cobra.Command {
	root := &cobra.Command{Use: "vars", Short: "Local secret variables (DEPLOYER_PK and friends)"}

	var value string
	set := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a variable; prompts without echo when --value is omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if err := secrets.ValidateName(name); err != nil {
				return err
			}
			v := value
			if v == "" {
				read, err := s.readSecretValue(cmd, name)
				if err != nil {
					return err
				}
				v = read
			}
			store, err := s.secretsStore()
			if err != nil {
				return err
			}
			if err := store.Set(name, v); err != nil {
				return err
			}
			s.logger.Info("variable stored", zap.String("name", name))
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.VarChange{
				Name:    name,
				Action:  "set",
				Changed: true,
				Path:    store.Path(),
			}, nil, cacheMetaBypass(), nil, false)
		},
	}
	set.Flags().StringVar(&value, "value", "", "Variable value (visible in shell history; prefer the prompt)")

	var reveal bool
	get := &cobra.Command{
		Use:   "get <name>",
		Short: "Read a variable (masked unless --reveal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if err := secrets.ValidateName(name); err != nil {
				return err
			}
			store, err := s.secretsStore()
			if err != nil {
				return err
			}
			v, ok, err := store.Get(name)
			if err != nil {
				return err
			}
			if !ok {
				return clierr.New(clierr.CodeMissingSecret, fmt.Sprintf("variable %s is not set", name))
			}
			if !reveal {
				v = logging.Redact(v)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.VarEntry{Name: name, Value: v, Set: true}, nil, cacheMetaBypass(), nil, false)
		},
	}
	get.Flags().BoolVar(&reveal, "reveal", false, "Print the full value")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored variable names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.secretsStore()
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			items := make([]model.VarEntry, 0, len(names))
			for _, name := range names {
				items = append(items, model.VarEntry{Name: name, Set: true})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}

	del := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a variable",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if err := secrets.ValidateName(name); err != nil {
				return err
			}
			store, err := s.secretsStore()
			if err != nil {
				return err
			}
			existed, err := store.Delete(name)
			if err != nil {
				return err
			}
			var warnings []string
			if !existed {
				warnings = []string{fmt.Sprintf("variable %s was not set", name)}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.VarChange{
				Name:    name,
				Action:  "delete",
				Changed: existed,
				Path:    store.Path(),
			}, warnings, cacheMetaBypass(), nil, false)
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the vars file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.secretsStore()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]string{"path": store.Path()}, nil, cacheMetaBypass(), nil, false)
		},
	}

	root.AddCommand(set)
	root.AddCommand(get)
	root.AddCommand(list)
	root.AddCommand(del)
	root.AddCommand(path)
	return root
}

// readSecretValue prompts on a terminal without echo, or reads one line from piped stdin.
func (s *runtimeState) readSecretValue(cmd *cobra.Command, name string) (string, error) {
	if f, ok := s.runner.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprintf(s.runner.stderr, "Enter value for %s: ", name)
		buf, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(s.runner.stderr)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeUsage, "read value", err)
		}
		return strings.TrimSpace(string(buf)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", clierr.Wrap(clierr.CodeUsage, "read value from stdin", err)
	}
	v := strings.TrimSpace(line)
	if v == "" {
		return "", clierr.New(clierr.CodeUsage, "no value provided; pass --value or pipe it on stdin")
	}
	return v, nil
}
