package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/model"
	"github.com/ggonzalez94/deployctl/internal/registry"
	"github.com/ggonzalez94/deployctl/internal/verify"
)

// dialCaller opens a read-only contract client for url. The returned func releases it.
type dialCaller func(ctx context.Context, url string) (verify.ContractCaller, func(), error)

func dialEthclient(ctx context.Context, url string) (verify.ContractCaller, func(), error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return client, client.Close, nil
}

func (s *runtimeState) newVerifyCommand() *cobra.Command {
	root := &cobra.Command{Use: "verify", Short: "Block-explorer verification commands"}

	var network, contractPath, address string
	var ctorArgs []string
	var taskTimeout time.Duration
	run := &cobra.Command{
		Use:   "run",
		Short: "Publish a deployed contract's source to the network's explorer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			networkName := ""
			if strings.TrimSpace(network) != "" {
				p, err := staticProfile(network)
				if err != nil {
					return err
				}
				networkName = p.Name
			}
			req := verify.Request{ContractPath: strings.TrimSpace(contractPath), Address: strings.TrimSpace(address)}
			if req.Address == "" && networkName != "" {
				recorded, err := s.latestAddress(networkName, verify.ContractName(req.ContractPath))
				if err != nil {
					return err
				}
				req.Address = recorded
			}
			if err := verify.CheckPreconditions(networkName, req); err != nil {
				return err
			}

			env, err := s.loadEnvironment()
			if err != nil {
				return err
			}
			chainID, err := env.registry.ParseChain(networkName)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
			defer cancel()
			upstreams := []model.UpstreamStatus{}
			switch {
			case cmd.Flags().Changed("args"):
				req.ConstructorArgs = ctorArgs
			case verify.ReadsConstructorArgs(req.ContractPath):
				url, err := env.registry.ResolveRPCURL(chainID)
				if err != nil {
					return err
				}
				started := time.Now()
				values, err := s.readConstructorArgs(ctx, url, req)
				upstreams = append(upstreams, model.UpstreamStatus{Name: "rpc", Status: statusFromErr(err), LatencyMS: time.Since(started).Milliseconds()})
				s.captureCommandDiagnostics(nil, upstreams, false)
				if err != nil {
					return err
				}
				req.ConstructorArgs = values
			}

			tasks, err := s.taskRunner(env)
			if err != nil {
				return err
			}
			started := time.Now()
			res, err := verify.Runner{Tasks: tasks, Logger: s.logger}.Verify(ctx, networkName, req)
			upstreams = append(upstreams, model.UpstreamStatus{Name: "hardhat verify", Status: statusFromErr(err), LatencyMS: time.Since(started).Milliseconds()})
			s.captureCommandDiagnostics(nil, upstreams, false)
			if err != nil {
				return err
			}
			var warnings []string
			if res.AlreadyVerified {
				warnings = append(warnings, "contract was already verified")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, warnings, cacheMetaBypass(), upstreams, false)
		},
	}
	run.Flags().StringVar(&network, "network", "", "Network the contract is deployed on")
	run.Flags().StringVar(&contractPath, "contract", registry.MultiRewardsFactoryContractPath, "Fully qualified contract, e.g. contracts/MultiRewards.sol:MultiRewards")
	run.Flags().StringVar(&address, "address", "", "Contract address (default: latest recorded deployment)")
	run.Flags().StringSliceVar(&ctorArgs, "args", nil, "Constructor arguments (default: read from chain when known)")
	run.Flags().DurationVar(&taskTimeout, "task-timeout", defaultTaskTimeout, "Maximum duration of the verification task")

	var statusNetwork, statusAddress string
	status := &cobra.Command{
		Use:   "status",
		Short: "Check whether a contract's source is published on the explorer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(statusNetwork, "network"); err != nil {
				return err
			}
			if err := requireArg(statusAddress, "address"); err != nil {
				return err
			}
			reg, err := s.loadRegistry(false)
			if err != nil {
				return err
			}
			chainID, err := reg.ParseChain(statusNetwork)
			if err != nil {
				return err
			}
			var statusCache verify.StatusCache
			if s.settings.CacheEnabled && s.cache != nil {
				statusCache = s.cache
			}
			client := verify.NewExplorerClient(s.httpClient(), reg, statusCache, s.logger)

			ctx, cancel := s.commandContext()
			defer cancel()
			started := time.Now()
			res, err := client.Status(ctx, chainID, statusAddress)
			upstreams := []model.UpstreamStatus{{Name: "explorer", Status: statusFromErr(err), LatencyMS: time.Since(started).Milliseconds()}}
			s.captureCommandDiagnostics(nil, upstreams, false)
			if err != nil {
				return err
			}
			cacheStatus := cacheMetaMiss()
			if res.Cached {
				cacheStatus = model.CacheStatus{Status: "hit"}
				upstreams = nil
			} else if statusCache == nil {
				cacheStatus = cacheMetaBypass()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil, cacheStatus, upstreams, false)
		},
	}
	status.Flags().StringVar(&statusNetwork, "network", "", "Network name or chain id")
	status.Flags().StringVar(&statusAddress, "address", "", "Contract address")

	root.AddCommand(run)
	root.AddCommand(status)
	return root
}

// latestAddress looks up the newest recorded deployment; an empty result is left for the
// precondition check to reject.
func (s *runtimeState) latestAddress(network, contract string) (string, error) {
	store, err := s.deploymentStore()
	if err != nil {
		return "", err
	}
	rec, ok, err := store.Latest(network, contract)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "read deployment store", err)
	}
	if !ok {
		s.logger.Debug("no recorded deployment", zap.String("network", network), zap.String("contract", contract))
		return "", nil
	}
	return rec.Address, nil
}

func (s *runtimeState) readConstructorArgs(ctx context.Context, url string, req verify.Request) ([]string, error) {
	dial := s.runner.dial
	if dial == nil {
		dial = dialEthclient
	}
	caller, release, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer release()
	values, err := verify.ConstructorArgs(ctx, caller, req.ContractPath, common.HexToAddress(req.Address))
	if err != nil {
		return nil, fmt.Errorf("read constructor arguments of %s: %w", verify.ContractName(req.ContractPath), err)
	}
	return values, nil
}
