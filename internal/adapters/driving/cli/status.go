package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status [account-id]",
	Short: "Show poll status of accounts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var statusHistory int

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "also list the last N recorded cycles")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	ids := args
	if len(ids) == 0 {
		accounts, err := s.Accounts.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		cmd.Println("No accounts configured.")
		return nil
	}

	for _, id := range ids {
		status, err := s.Poller.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get status of %s: %w", id, err)
		}
		printStatus(cmd, status)
		if statusHistory > 0 {
			reports, err := s.Poller.History(ctx, id, statusHistory)
			if err != nil {
				return fmt.Errorf("failed to load history of %s: %w", id, err)
			}
			if err := printHistory(cmd, reports); err != nil {
				return err
			}
		}
	}
	return nil
}

func printStatus(cmd *cobra.Command, st *domain.AccountStatus) {
	a := st.Account
	state := string(st.State)
	if state == "" {
		state = string(domain.PollStateIdle)
	}
	if st.Running {
		state += " (running)"
	}

	cmd.Printf("%s  %s (%s)\n", a.ID, a.Name, a.Type)
	cmd.Printf("  State:     %s\n", state)
	cmd.Printf("  Position:  %s\n", displayPosition(a.Position))
	cmd.Printf("  Last poll: %s\n", formatTime(a.LastPoll))
	if r := st.LastReport; r != nil {
		cmd.Printf("  Last cycle: %d dispatched, %d handler errors", r.Dispatched(), r.HandlerErrors)
		if r.Error != "" {
			cmd.Printf(", error: %s", r.Error)
		}
		cmd.Println()
	}
}

func printHistory(cmd *cobra.Command, reports []domain.CycleReport) error {
	if len(reports) == 0 {
		cmd.Println("  No recorded cycles.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  STARTED\tSTATE\tPOSITION\tDISPATCHED\tDURATION\tERROR")
	for i := range reports {
		r := &reports[i]
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\t%s\n",
			formatTime(r.StartedAt), r.State, displayPosition(r.NewPosition),
			r.Dispatched(), r.Duration().Round(time.Millisecond), r.Error)
	}
	return w.Flush()
}
