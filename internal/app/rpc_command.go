package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/deployctl/internal/cache"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/model"
	"github.com/ggonzalez94/deployctl/internal/probe"
)

const probeTTL = 30 * time.Second

func (s *runtimeState) newRPCCommand() *cobra.Command {
	root := &cobra.Command{Use: "rpc", Short: "RPC endpoint commands"}

	var concurrency int
	probeCmd := &cobra.Command{
		Use:   "probe <chain>",
		Short: "Query eth_chainId on the resolved and fallback endpoints of a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.loadRegistry(false)
			if err != nil {
				return err
			}
			chainID, err := reg.ParseChain(args[0])
			if err != nil {
				return err
			}
			if chainID == id.Hardhat {
				return clierr.New(clierr.CodeUnsupported, "the in-process network has no rpc endpoint")
			}
			p, err := reg.Profile(chainID)
			if err != nil {
				return err
			}
			resolved, err := reg.ResolveRPCURL(chainID)
			if err != nil {
				return err
			}
			urls := []string{resolved}
			for _, u := range p.FallbackRPCURLs {
				if u != resolved {
					urls = append(urls, u)
				}
			}

			prober := probe.Prober{
				Timeout:     s.settings.Timeout,
				Concurrency: concurrency,
				ChainID:     s.runner.chainID,
				Logger:      s.logger,
				Redact:      s.redact,
			}
			key := cache.Key("rpc-probe", chainID.String(), s.redact(resolved))
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, probeTTL, func(ctx context.Context) (any, []model.UpstreamStatus, []string, bool, error) {
				report, err := prober.Probe(ctx, p.Name, chainID, urls)
				if err != nil {
					return nil, nil, nil, false, clierr.Wrap(clierr.CodeUnavailable, "probe rpc endpoints", err)
				}
				upstreams := make([]model.UpstreamStatus, 0, len(report.Endpoints))
				var warnings []string
				failed := 0
				for i := range report.Endpoints {
					e := &report.Endpoints[i]
					e.URL = s.redact(e.URL)
					e.Error = s.redact(e.Error)
					status := "ok"
					switch {
					case !e.OK:
						status = "unavailable"
						failed++
					case !e.ChainIDMatch:
						status = "chain_mismatch"
						failed++
						warnings = append(warnings, fmt.Sprintf("%s answered with chain id %d", e.URL, e.ChainID))
					}
					upstreams = append(upstreams, model.UpstreamStatus{Name: e.URL, Status: status, LatencyMS: e.LatencyMS})
				}
				report.Healthy = s.redact(report.Healthy)
				if report.Healthy == "" {
					return nil, upstreams, warnings, false, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("no healthy rpc endpoint for %s", p.Name))
				}
				return report, upstreams, warnings, failed > 0, nil
			})
		},
	}
	probeCmd.Flags().IntVar(&concurrency, "concurrency", probe.DefaultConcurrency, "Endpoints probed in parallel")

	root.AddCommand(probeCmd)
	return root
}
