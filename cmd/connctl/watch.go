package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"connstatus/internal/heartbeat"
	"connstatus/internal/monitor"
	"connstatus/internal/status"
)

var (
	watchInterval  time.Duration
	watchThreshold int
)

// eventPrinter 打印每次状态事件并高亮状态变化
type eventPrinter struct {
	mu    sync.Mutex
	last  *status.ConnectionState
	now   func() time.Time
	write func(string)
}

func (p *eventPrinter) OnStatusChange(e status.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.last != nil && *p.last != e.State
	state := e.State
	p.last = &state
	p.write(formatEvent(p.now(), e, changed))
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a local heartbeat poller and print every status event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := cfg.ConnectionStatus
		if watchInterval > 0 {
			opts.PollIntervalDuration = watchInterval
			opts.PollInterval = watchInterval.String()
		}
		if watchThreshold > 0 {
			opts.RetryThreshold = watchThreshold
		}

		prober := monitor.NewProber(cfg.Target, opts.ProbeTimeoutDuration)
		defer prober.Close()

		p := heartbeat.New(prober, opts, nil)
		p.Register("printer", &eventPrinter{
			now:   time.Now,
			write: func(s string) { fmt.Println(s) },
		})

		fmt.Printf("%s %s every %s, threshold %d (Ctrl+C to stop)\n",
			bold("Watching"), prober.URL(), opts.PollIntervalDuration, opts.RetryThreshold)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := p.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		p.Stop()

		m := p.Machine()
		fmt.Printf("%s state=%s health=%s samples=%d\n", bold("Final"), stateLabel(m.State()), healthLabel(m.Health()), m.HistoryLen())
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Override poll interval")
	watchCmd.Flags().IntVar(&watchThreshold, "threshold", 0, "Override retry threshold")
	rootCmd.AddCommand(watchCmd)
}
