package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stayswap/swapsync/pkg/config"
	"github.com/stayswap/swapsync/pkg/metrics"
	"github.com/stayswap/swapsync/pkg/responder"
	"github.com/stayswap/swapsync/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swapsync",
	Short: "StaySwap proposal response client",
	Long: `Swapsync coordinates accept/reject responses to booking-swap
proposals against the StaySwap API: optimistic local state, bounded
retries with backoff, real-time reconciliation over WebSocket, and
timeout cleanup.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"swapsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")

	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sweepCmd)
}

var respondCmd = &cobra.Command{
	Use:   "respond [accept|reject] PROPOSAL_ID...",
	Short: "Accept or reject one or more swap proposals",
	Long: `Respond to swap proposals. A single proposal id runs the full
optimistic workflow; multiple ids run as a batch with optimistic
updates disabled and one atomic commit at the end.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := types.ResponseAction(args[0])
		if !action.Valid() {
			return fmt.Errorf("action must be 'accept' or 'reject', got %q", args[0])
		}
		proposalIDs := args[1:]

		userID, _ := cmd.Flags().GetString("user")
		reason, _ := cmd.Flags().GetString("reason")
		swapTargetID, _ := cmd.Flags().GetString("swap-target")
		autoPayment, _ := cmd.Flags().GetBool("auto-payment")
		noOptimistic, _ := cmd.Flags().GetBool("no-optimistic")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer sess.close()

		opts := responder.Options{
			Reason:             reason,
			DisableOptimistic:  noOptimistic,
			MaxRetries:         cfg.Operations.MaxRetries,
			Timeout:            cfg.Operations.Timeout.Std(),
			AutoProcessPayment: autoPayment,
			SwapTargetID:       swapTargetID,
		}
		ctx := cmd.Context()

		if len(proposalIDs) == 1 {
			id := proposalIDs[0]
			fmt.Printf("Responding '%s' to proposal %s...\n", action, id)
			result, err := sess.responder.Respond(ctx, id, userID, action, opts)
			if err != nil {
				return fmt.Errorf("failed to respond: %w", err)
			}
			printResult(id, result)
			return nil
		}

		fmt.Printf("Responding '%s' to %d proposals...\n", action, len(proposalIDs))
		results := sess.responder.RespondBatch(ctx, proposalIDs, userID, action, opts)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("  ✗ %s: %v\n", r.ProposalID, r.Err)
				continue
			}
			fmt.Printf("  ✓ %s\n", r.ProposalID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d proposals failed", failed, len(results))
		}
		return nil
	},
}

func printResult(proposalID string, result *types.RespondResult) {
	fmt.Printf("✓ Proposal %s resolved\n", proposalID)
	if result.Proposal != nil {
		fmt.Printf("  Status: %s\n", result.Proposal.Status)
	}
	if result.Payment != nil {
		fmt.Printf("  Payment: %s (%s)\n", result.Payment.ID, result.Payment.Status)
	}
	if result.Blockchain != nil {
		fmt.Printf("  Ledger record: %s\n", result.Blockchain.Hash)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status PROPOSAL_ID",
	Short: "Show the server-side status of a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer sess.close()

		status, err := sess.client.GetProposalStatus(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch status: %w", err)
		}
		fmt.Printf("Proposal: %s\n", args[0])
		fmt.Printf("  Status: %s\n", status.Status)
		if status.RespondedBy != "" {
			fmt.Printf("  Responded by: %s\n", status.RespondedBy)
		}
		if !status.RespondedAt.IsZero() {
			fmt.Printf("  Responded at: %s\n", status.RespondedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow real-time proposal events",
	Long: `Connect to the event stream and print proposal updates as they
arrive. Authoritative server events supersede any local state; the
timeout sweeper runs in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		proposalIDs, _ := cmd.Flags().GetStringSlice("proposal")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer sess.close()

		ctx := cmd.Context()
		for _, id := range proposalIDs {
			if err := sess.realtime.SubscribeProposal(ctx, id); err != nil {
				return err
			}
		}
		if userID != "" {
			if err := sess.realtime.SetUser(ctx, userID); err != nil {
				return err
			}
		}
		if err := sess.realtime.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to event stream: %w", err)
		}
		fmt.Println("✓ Connected to event stream")

		sess.sweeper.Start()
		defer sess.sweeper.Stop()

		collector := metrics.NewCollector(sess.store)
		collector.Start()
		defer collector.Stop()

		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					fmt.Fprintf(os.Stderr, "Metrics server error: %v\n", err)
				}
			}()
			fmt.Printf("✓ Metrics on %s/metrics\n", cfg.MetricsAddr)
		}

		sub := sess.broker.Subscribe()
		defer sess.broker.Unsubscribe(sub)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		fmt.Println("Watching for proposal events. Press Ctrl+C to stop.")

		for {
			select {
			case ev := <-sub:
				line := fmt.Sprintf("[%s] %s", ev.Timestamp.Format("15:04:05"), ev.Type)
				if ev.ProposalID != "" {
					line += " proposal=" + ev.ProposalID
				}
				if ev.Message != "" {
					line += " " + ev.Message
				}
				fmt.Println(line)
			case <-sigCh:
				fmt.Println("\nShutting down...")
				return nil
			}
		}
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one timeout and retention sweep",
	Long: `Run a single sweep cycle: stale journal entries are pruned per
their retention windows. With an active session this also ages out
timed-out operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer sess.close()

		result := sess.sweeper.RunOnce()
		fmt.Printf("Sweep complete: %d retried, %d timed out, %d operations purged, %d records purged\n",
			len(result.Retried), len(result.TimedOut), result.PurgedOps, result.PurgedRecords)

		if sess.journal != nil {
			if err := sess.journal.Prune(time.Now()); err != nil {
				return fmt.Errorf("failed to prune journal: %w", err)
			}
			fmt.Println("✓ Journal pruned")
		}
		return nil
	},
}

func init() {
	respondCmd.Flags().String("user", "", "Acting user id")
	respondCmd.Flags().String("reason", "", "Rejection reason")
	respondCmd.Flags().String("swap-target", "", "Target booking for the swap")
	respondCmd.Flags().Bool("auto-payment", false, "Process payment automatically on accept")
	respondCmd.Flags().Bool("no-optimistic", false, "Disable the optimistic status projection")
	respondCmd.MarkFlagRequired("user")

	watchCmd.Flags().String("user", "", "Subscribe to this user's proposal channels")
	watchCmd.Flags().StringSlice("proposal", nil, "Proposal id to follow (repeatable)")
}
