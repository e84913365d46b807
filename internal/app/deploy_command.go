package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ggonzalez94/deployctl/internal/deploy"
	"github.com/ggonzalez94/deployctl/internal/deployments"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/model"
)

const defaultTaskTimeout = 30 * time.Minute

func (s *runtimeState) newDeployCommand() *cobra.Command {
	var network, moduleName string
	var taskTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an ignition module and record the resulting addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(network, "network"); err != nil {
				return err
			}
			module, err := deploy.LookupModule(moduleName)
			if err != nil {
				return err
			}
			env, err := s.loadEnvironment()
			if err != nil {
				return err
			}
			chainID, err := env.registry.ParseChain(network)
			if err != nil {
				return err
			}
			name, _ := env.registry.NetworkName(chainID)
			tasks, err := s.taskRunner(env)
			if err != nil {
				return err
			}
			runner := deploy.Runner{Tasks: tasks, Logger: s.logger}
			if chainID != id.Hardhat {
				store, err := s.deploymentStore()
				if err != nil {
					return err
				}
				runner.Store = store
			}

			ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
			defer cancel()
			started := time.Now()
			res, err := runner.Deploy(ctx, module, deploy.Target{Network: name, ChainID: chainID})
			upstreams := []model.UpstreamStatus{{
				Name:      "hardhat ignition",
				Status:    statusFromErr(err),
				LatencyMS: time.Since(started).Milliseconds(),
			}}
			s.captureCommandDiagnostics(nil, upstreams, false)
			if err != nil {
				return err
			}
			var warnings []string
			if !res.Recorded {
				warnings = append(warnings, "deployment to the in-process network is ephemeral and was not recorded")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, warnings, cacheMetaBypass(), upstreams, false)
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "Target network name or chain id")
	cmd.Flags().StringVar(&moduleName, "module", deploy.MultiRewards.ID, "Ignition module to deploy")
	cmd.Flags().DurationVar(&taskTimeout, "task-timeout", defaultTaskTimeout, "Maximum duration of the deployment task")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func (s *runtimeState) newDeploymentsCommand() *cobra.Command {
	root := &cobra.Command{Use: "deployments", Short: "Recorded deployment addresses"}

	var listNetwork string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			network := ""
			if strings.TrimSpace(listNetwork) != "" {
				p, err := staticProfile(listNetwork)
				if err != nil {
					return err
				}
				network = p.Name
			}
			store, err := s.deploymentStore()
			if err != nil {
				return err
			}
			records, err := store.List(network, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list deployments", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil, cacheMetaBypass(), nil, false)
		},
	}
	list.Flags().StringVar(&listNetwork, "network", "", "Filter by network name or chain id")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")

	var addNetwork, contract, address, moduleName string
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an address deployed outside this tool (for example a pool created by the factory)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			required := []struct{ flag, value string }{
				{"network", addNetwork},
				{"contract", contract},
				{"address", address},
			}
			for _, r := range required {
				if err := requireArg(r.value, r.flag); err != nil {
					return err
				}
			}
			p, err := staticProfile(addNetwork)
			if err != nil {
				return err
			}
			if p.ID == id.Hardhat {
				return clierr.New(clierr.CodeUsage, "in-process network deployments are not recorded")
			}
			store, err := s.deploymentStore()
			if err != nil {
				return err
			}
			rec, err := store.Save(deployments.Record{
				Network:  p.Name,
				ChainID:  p.ID.Int64(),
				Module:   moduleName,
				Contract: contract,
				Address:  address,
			})
			if err != nil {
				return err
			}
			s.logger.Info("deployment recorded", zap.String("network", rec.Network), zap.String("contract", rec.Contract), zap.String("address", rec.Address))
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec, nil, cacheMetaBypass(), nil, false)
		},
	}
	add.Flags().StringVar(&addNetwork, "network", "", "Network name or chain id")
	add.Flags().StringVar(&contract, "contract", "", "Contract name, e.g. MultiRewards")
	add.Flags().StringVar(&address, "address", "", "Deployed address")
	add.Flags().StringVar(&moduleName, "module", "manual", "Module label stored with the record")

	root.AddCommand(list)
	root.AddCommand(add)
	return root
}
