package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rustyeddy/portfolio/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query backtest journal data",
	Long: `Query and display backtest records from a SQLite journal.

Subcommands:
  runs         - List recorded runs
  run          - Show one run as an Org-mode summary
  positions    - List a run's closed positions as Org-mode entries
  transactions - List a run's transactions

Examples:
  trader journal runs
  trader journal run <run-id>
  trader journal positions <run-id>`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalPositionsCmd = &cobra.Command{
	Use:   "positions <run-id>",
	Short: "List a run's closed positions",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalPositions,
}

var journalTransactionsCmd = &cobra.Command{
	Use:   "transactions <run-id>",
	Short: "List a run's transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTransactions,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalRunCmd)
	journalCmd.AddCommand(journalPositionsCmd)
	journalCmd.AddCommand(journalTransactionsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./portfolio.sqlite", "path to SQLite journal DB")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", "Created", "Dataset", "Return", "Max DD", "Trades", "Win Rate"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID, r.Created.Format("2006-01-02 15:04"), r.Dataset,
			pct(r.TotalReturn), pct(r.MaxDrawdown), r.Trades, pct(r.WinRate()),
		})
	}
	t.Render()
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	return run.RenderOrg(cmd.OutOrStdout())
}

func runJournalPositions(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	ps, err := j.ListClosedPositions(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatPositionsOrg(ps))
	return nil
}

func runJournalTransactions(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	txs, err := j.ListTransactions(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Symbol", "Action", "Qty", "Price", "Commission", "Total", "Reason"})
	for _, tx := range txs {
		t.AppendRow(table.Row{
			tx.Time.Format("2006-01-02"), tx.Symbol, tx.Action,
			fmt.Sprintf("%.4f", tx.Quantity), fmt.Sprintf("%.2f", tx.Price),
			fmt.Sprintf("%.2f", tx.Commission), fmt.Sprintf("%.2f", tx.TotalCost), tx.Reason,
		})
	}
	t.Render()
	return nil
}
