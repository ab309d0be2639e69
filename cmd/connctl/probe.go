package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"connstatus/internal/monitor"
)

var (
	probeCount       int
	probeConcurrency int
	probeURL         string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the liveness endpoint",
	Long: `Issue one or more liveness probes against the configured target.

Examples:
  # Single probe using config.yaml
  connctl probe

  # Ten probes, four at a time
  connctl probe -n 10 --concurrency 4

  # Probe an explicit origin
  connctl probe --origin http://127.0.0.1:3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		target := cfg.Target
		if probeURL != "" {
			target.Origin = probeURL
		}

		prober := monitor.NewProber(target, cfg.ConnectionStatus.ProbeTimeoutDuration)
		defer prober.Close()

		fmt.Printf("%s %s (timeout %s)\n", bold("Probing"), prober.URL(), cfg.ConnectionStatus.ProbeTimeoutDuration)

		results := make([]*monitor.ProbeResult, max(probeCount, 1))
		var failures atomic.Int32

		ctx, cancel := context.WithTimeout(cmd.Context(), probeDeadline)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(max(probeConcurrency, 1))
		for i := range results {
			g.Go(func() error {
				r := prober.Probe(ctx)
				results[i] = r
				if !r.Success {
					failures.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			fmt.Println(formatProbe(r))
		}
		if n := failures.Load(); n > 0 {
			return fmt.Errorf("%d/%d 次探测失败", n, len(results))
		}
		return nil
	},
}

// probeDeadline 整条命令的超时上限
const probeDeadline = time.Minute

func init() {
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 1, "Number of probes")
	probeCmd.Flags().IntVar(&probeConcurrency, "concurrency", 1, "Probes in flight at once")
	probeCmd.Flags().StringVar(&probeURL, "origin", "", "Override target origin")
	rootCmd.AddCommand(probeCmd)
}
