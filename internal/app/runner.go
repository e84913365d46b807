package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ggonzalez94/deployctl/internal/accounts"
	"github.com/ggonzalez94/deployctl/internal/cache"
	"github.com/ggonzalez94/deployctl/internal/config"
	"github.com/ggonzalez94/deployctl/internal/deployments"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/httpx"
	"github.com/ggonzalez94/deployctl/internal/logging"
	"github.com/ggonzalez94/deployctl/internal/model"
	"github.com/ggonzalez94/deployctl/internal/out"
	"github.com/ggonzalez94/deployctl/internal/policy"
	"github.com/ggonzalez94/deployctl/internal/probe"
	"github.com/ggonzalez94/deployctl/internal/registry"
	"github.com/ggonzalez94/deployctl/internal/schema"
	"github.com/ggonzalez94/deployctl/internal/secrets"
	"github.com/ggonzalez94/deployctl/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	now    func() time.Time

	// exec, chainID and dial replace process spawning and RPC dialing in tests.
	exec    hardhat.Exec
	chainID probe.ChainIDFunc
	dial    dialCaller
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		stdin:  os.Stdin,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	logger        *zap.Logger
	cache         *cache.Store
	secrets       *secrets.Store
	deployments   *deployments.Store
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastUpstreams []model.UpstreamStatus
	lastPartial   bool
}

// environment is the validated startup state shared by commands that talk to a network.
type environment struct {
	registry *registry.Registry
	accounts accounts.Accounts
	mnemonic string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, logger: zap.NewNop()}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SetIn(r.stdin)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err != nil {
		state.logger.Debug("command failed", zap.String("command", state.lastCommand), zap.String("error", state.redact(err.Error())))
		state.renderError("", err, state.lastWarnings, state.lastUpstreams, state.lastPartial)
	}
	state.close()
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.deployments != nil {
		_ = s.deployments.Close()
	}
	_ = s.logger.Sync()
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Deployment harness for the MultiRewards contracts across EVM chains",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			logger, err := logging.New(settings.LogLevel, settings.OutputMode == "plain", s.runner.stderr)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.logger = logger.With(zap.String("command", trimRootPath(cmd.CommandPath())))

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
				if err := cacheStore.Prune(); err != nil {
					s.logger.Debug("cache prune failed", zap.Error(err))
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted for nested)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Network request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per explorer request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file (yaml or toml)")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to the .env file (default <project>/.env)")
	cmd.PersistentFlags().StringVar(&s.flags.ProjectDir, "project-dir", "", "Hardhat project directory")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level written to stderr (debug, info, warn, error, off)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newConfigCommand())
	cmd.AddCommand(s.newEnvCommand())
	cmd.AddCommand(s.newVarsCommand())
	cmd.AddCommand(s.newDeployCommand())
	cmd.AddCommand(s.newDeploymentsCommand())
	cmd.AddCommand(s.newVerifyCommand())
	cmd.AddCommand(s.newRPCCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	var inherited bool
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "), schema.Options{
				Inherited: inherited,
				Mutating:  policy.Mutating,
			})
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().BoolVar(&inherited, "inherited", false, "Include inherited global flags")
	return cmd
}

// loadRegistry builds the validated chain registry. Every missing explorer key is reported
// in one error; requireAggregator adds INFURA_API_KEY to that report.
func (s *runtimeState) loadRegistry(requireAggregator bool) (*registry.Registry, error) {
	return registry.New(registry.Options{
		APIKeys:              registry.LoadAPIKeys(s.settings.ExplorerKeyLookup),
		AggregatorKey:        s.settings.InfuraAPIKey,
		NodeRealKey:          s.settings.NodeRealAPIKey,
		RequireAggregatorKey: requireAggregator,
	})
}

// loadEnvironment runs the full startup check: deployer credentials, explorer keys and the
// aggregator key. Failures from both halves are reported together.
func (s *runtimeState) loadEnvironment() (environment, error) {
	acc, accErr := s.resolveAccounts()
	reg, regErr := s.loadRegistry(true)
	if err := combineStartupErrors(accErr, regErr); err != nil {
		return environment{}, err
	}
	s.logger.Debug("startup checks passed", zap.String("account_source", string(acc.Source)), zap.Int("networks", len(reg.Profiles())))
	return environment{registry: reg, accounts: acc, mnemonic: s.settings.Mnemonic}, nil
}

func combineStartupErrors(accErr, regErr error) error {
	switch {
	case accErr == nil && regErr == nil:
		return nil
	case regErr == nil:
		return accErr
	case accErr == nil:
		return regErr
	}
	code := clierr.CodeConfig
	if cErr, ok := clierr.As(accErr); ok {
		code = cErr.Code
	}
	return clierr.Wrap(code, "startup checks failed", errors.Join(accErr, regErr))
}

func (s *runtimeState) resolveAccounts() (accounts.Accounts, error) {
	pk, _, err := s.deployerKey()
	if err != nil {
		return accounts.Accounts{}, err
	}
	return accounts.Resolve(accounts.InputsFromEnv(pk, s.settings.Mnemonic))
}

// deployerKey reads DEPLOYER_PK from the environment first, then from the vars store.
func (s *runtimeState) deployerKey() (string, string, error) {
	if s.settings.DeployerPK != "" {
		return s.settings.DeployerPK, s.originOf(config.EnvDeployerPK, true), nil
	}
	store, err := s.secretsStore()
	if err != nil {
		return "", "", err
	}
	value, ok, err := store.Get(config.DeployerPKVar)
	if err != nil || !ok {
		return "", "", err
	}
	return value, "vars", nil
}

func (s *runtimeState) secretsStore() (*secrets.Store, error) {
	if s.secrets != nil {
		return s.secrets, nil
	}
	store, err := secrets.Open(s.settings.VarsPath, s.settings.VarsLockPath)
	if err != nil {
		return nil, err
	}
	s.secrets = store
	return store, nil
}

func (s *runtimeState) deploymentStore() (*deployments.Store, error) {
	if s.deployments != nil {
		return s.deployments, nil
	}
	store, err := deployments.Open(s.settings.DeploymentsPath, s.settings.DeploymentsLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open deployment store", err)
	}
	s.deployments = store
	return store, nil
}

func (s *runtimeState) httpClient() *httpx.Client {
	return httpx.New(httpx.Options{
		Timeout:   s.settings.Timeout,
		Retries:   s.settings.Retries,
		RateLimit: s.settings.ExplorerRateLimit,
		Logger:    s.logger,
	})
}

func (s *runtimeState) hardhatConfigPath() string {
	return filepath.Join(s.settings.ProjectDir, hardhat.DefaultFileName)
}

// taskRunner renders the secret-bearing hardhat config into the project and returns a
// runner pointed at it.
func (s *runtimeState) taskRunner(env environment) (hardhat.TaskRunner, error) {
	cfg, err := hardhat.Build(hardhat.Inputs{
		Registry:       env.registry,
		Accounts:       env.accounts,
		Mnemonic:       env.mnemonic,
		ForkChain:      s.settings.ChainID,
		ReportGas:      s.settings.ReportGas,
		IncludeSecrets: true,
	})
	if err != nil {
		return hardhat.TaskRunner{}, err
	}
	path := s.hardhatConfigPath()
	if err := hardhat.WriteFile(path, cfg, true); err != nil {
		return hardhat.TaskRunner{}, err
	}
	return hardhat.TaskRunner{
		Command:    s.settings.HardhatCommand,
		ProjectDir: s.settings.ProjectDir,
		ConfigPath: path,
		Exec:       s.runner.exec,
		Logger:     s.logger,
	}, nil
}

// secretValues lists every configured secret so exported output can mask them.
func (s *runtimeState) secretValues() []string {
	out := []string{s.settings.InfuraAPIKey, s.settings.NodeRealAPIKey, s.settings.Mnemonic, s.settings.DeployerPK}
	for _, v := range s.settings.ExplorerKeys {
		out = append(out, v)
	}
	return out
}

// redact masks configured secrets inside values such as aggregator URLs.
func (s *runtimeState) redact(v string) string {
	for _, secret := range s.secretValues() {
		if strings.TrimSpace(secret) == "" || secret == registry.PlaceholderAPIKey {
			continue
		}
		v = strings.ReplaceAll(v, secret, logging.Redact(secret))
	}
	return v
}

func (s *runtimeState) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.settings.Timeout)
}

type fetchFn func(ctx context.Context) (any, []model.UpstreamStatus, []string, bool, error)

// runCachedCommand serves a fresh cache entry when present, otherwise fetches and stores
// the result. Partial results are emitted but never cached.
func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	if !s.settings.CacheEnabled || s.cache == nil {
		cacheStatus = cacheMetaBypass()
	}

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(key)
		if err == nil && cached.Hit && !cached.Stale {
			var data any
			if err := json.Unmarshal(cached.Value, &data); err == nil {
				entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds()}
				return s.emitSuccess(commandPath, data, nil, entryStatus, nil, false)
			}
		}
	}

	ctx, cancel := s.commandContext()
	defer cancel()
	data, upstreams, warnings, partial, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, upstreams, partial)
	if err != nil {
		return err
	}

	if s.settings.CacheEnabled && s.cache != nil && !partial {
		if payload, err := json.Marshal(data); err == nil {
			if err := s.cache.Set(key, payload, ttl); err != nil {
				s.logger.Debug("cache write failed", zap.Error(err))
			} else {
				cacheStatus = model.CacheStatus{Status: "write"}
			}
		}
	}
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, upstreams, partial)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, upstreams []model.UpstreamStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Upstreams: upstreams,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, upstreams []model.UpstreamStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = errorType(cErr.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: s.redact(message),
			Missing: missingReport(err),
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Upstreams: upstreams,
			Cache:     cacheMetaBypass(),
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func errorType(code clierr.Code) string {
	switch code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "upstream_unavailable"
	case clierr.CodeUnsupported:
		return "unsupported"
	case clierr.CodeBlocked:
		return "command_blocked"
	case clierr.CodeConfig:
		return "config_error"
	case clierr.CodeMissingSecret:
		return "missing_secret"
	case clierr.CodeMissingAPIKey:
		return "missing_api_key"
	case clierr.CodeUnsupportedChain:
		return "unsupported_chain"
	case clierr.CodeVerifyPrecondition:
		return "verification_precondition"
	case clierr.CodeTaskFailed:
		return "task_failed"
	default:
		return "internal_error"
	}
}

// missingReport collects the unset variables named by startup errors, if any.
func missingReport(err error) *model.MissingReport {
	report := &clierr.MissingAPIKeyError{}
	if clierr.HasCode(err, clierr.CodeMissingSecret) {
		report.Add("", accounts.EnvPrivateKey)
		report.Add("", accounts.EnvMnemonic)
	}
	var keys *clierr.MissingAPIKeyError
	if errors.As(err, &keys) {
		report.Merge(keys)
	}
	if report.Empty() {
		return nil
	}
	return &model.MissingReport{Chains: report.Chains, Variables: report.Variables}
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		default:
			return "error"
		}
	}
	return "error"
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "rpc probe", "verify status":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastUpstreams = nil
	s.lastPartial = false
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, upstreams []model.UpstreamStatus, partial bool) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(upstreams) == 0 {
		s.lastUpstreams = nil
	} else {
		s.lastUpstreams = append([]model.UpstreamStatus(nil), upstreams...)
	}
	s.lastPartial = partial
}
