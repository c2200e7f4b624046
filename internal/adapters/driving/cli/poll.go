package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

var pollCmd = &cobra.Command{
	Use:   "poll [account-id]",
	Short: "Poll accounts once",
	Long: `Runs one poll cycle. If an account ID is provided, only that account is
polled. Otherwise every account is polled in parallel.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	if len(args) > 0 {
		accountID := args[0]
		cmd.Printf("Polling account: %s...\n", accountID)

		report, err := s.Poller.Poll(ctx, accountID)
		if report != nil {
			printReport(cmd, report)
		}
		if err != nil {
			return fmt.Errorf("poll failed: %w", err)
		}
		return nil
	}

	cmd.Println("Polling all accounts...")
	reports, err := s.Poller.PollAll(ctx)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}
	if len(reports) == 0 {
		cmd.Println("No accounts configured.")
		return nil
	}

	failed := 0
	for i := range reports {
		printReport(cmd, &reports[i])
		if reports[i].State == domain.PollStateFailed {
			failed++
		}
	}
	if failed > 0 {
		return errors.New(pluralise(failed, "account") + " failed")
	}
	return nil
}

func printReport(cmd *cobra.Command, r *domain.CycleReport) {
	kind := "incremental"
	if r.Initial {
		kind = "initial"
	}
	cmd.Printf("  %s [%s] %s: %d dispatched, %d dropped, %d handler errors, %d batches in %s\n",
		r.AccountID, r.AccountType, kind, r.Dispatched(), r.Dropped, r.HandlerErrors, r.Batches,
		r.Duration().Round(time.Millisecond))
	switch {
	case r.State == domain.PollStateFailed:
		cmd.Printf("    failed: %s (position kept at %s)\n", r.Error, displayPosition(r.OldPosition))
	case r.Committed:
		cmd.Printf("    position: %s\n", displayPosition(r.NewPosition))
	}
}

func pluralise(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
