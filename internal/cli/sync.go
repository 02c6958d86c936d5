package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TWRT/task-tracker/internal/offline"
)

var (
	syncStatus    bool
	agentInterval time.Duration
	agentProbe    time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued changes against the server",
	Long: `Replay every queued mutation in the order it was made.

Mutations the server rejects or cannot be reached for stay queued and are
retried next time. Use --status to list what is waiting without sending.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Keep the local replica in sync in the background",
	Long: `Run until interrupted. The agent probes the server every few seconds and
replays the queue as soon as it becomes reachable again. On every tick it also
re-derives stale statuses in the local replica and replays whatever is queued
if the server answers.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func init() {
	syncCmd.Flags().BoolVar(&syncStatus, "status", false, "Show queued changes without sending them")
	agentCmd.Flags().DurationVar(&agentInterval, "interval", 0, "Tick interval (overrides sync.interval)")
	agentCmd.Flags().DurationVar(&agentProbe, "probe-interval", 0, "Connectivity probe interval (overrides sync.probe_interval)")
}

func runSync(cmd *cobra.Command, args []string) error {
	return withClient(func(env *clientEnv) error {
		ctx := cmd.Context()
		if syncStatus {
			pending, err := env.queue.Drain(ctx)
			if err != nil {
				return err
			}
			return printPending(cmd.OutOrStdout(), outputFormat, pending)
		}

		result, err := env.session.Flush(ctx)
		if err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d of %d queued changes, %d rejected by the server, %d still waiting.\n",
			result.Replayed, result.Attempted, result.Rejected, result.Remaining)
		return nil
	})
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	interval := cfg.Sync.Interval
	if agentInterval > 0 {
		interval = agentInterval
	}
	probe := cfg.Sync.ProbeInterval
	if agentProbe > 0 {
		probe = agentProbe
	}

	env, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := env.session.Pending(ctx); err == nil {
		log.Printf("sync agent started: %d changes queued, ticking every %s against %s", n, interval, cfg.Client.RemoteURL)
	}

	err = syncLoop(ctx, env, interval, probe, cfg.Client.RequestTimeout)
	if errors.Is(err, context.Canceled) {
		log.Println("sync agent stopped")
		return nil
	}
	return err
}

// syncLoop drives the coordinator from its tick and from a connectivity
// watch, so a reconnect drains the queue without waiting for the next tick.
func syncLoop(ctx context.Context, env *clientEnv, interval, probe, probeTimeout time.Duration) error {
	restored := offline.WatchConnectivity(ctx, env.pinger, probe, probeTimeout)
	return env.coordinator.Run(ctx, interval, restored)
}
