package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradegym/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the run journal",
	Long: `Query and display runs and episodes recorded in a SQLite journal.

Subcommands:
  list    - List runs, or the episodes of one run
  report  - Print an Org-mode report of a run
  trades  - List the trades of one episode

Examples:
  tradegym journal list
  tradegym journal list --run 01HZX...
  tradegym journal report --run 01HZX... > run.org
  tradegym journal trades --run 01HZX... --env BTCUSDT.csv --episode 3`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, or the episodes of one run",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print an Org-mode report of a run",
	Args:  cobra.NoArgs,
	RunE:  runJournalReport,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List the trades of one episode",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var (
	journalDBPath  string
	journalRunID   string
	journalEnv     string
	journalEpisode int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalReportCmd)
	journalCmd.AddCommand(journalTradesCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./tradegym.db", "path to SQLite journal DB")
	journalCmd.PersistentFlags().StringVar(&journalRunID, "run", "", "run id")
	journalTradesCmd.Flags().StringVar(&journalEnv, "env", "", "env name")
	journalTradesCmd.Flags().IntVar(&journalEpisode, "episode", 1, "episode number")
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	out := cmd.OutOrStdout()
	if journalRunID == "" {
		runs, err := j.ListRuns()
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}
		printRuns(out, runs)
		return nil
	}

	eps, err := j.ListEpisodes(journalRunID)
	if err != nil {
		return fmt.Errorf("query episodes: %w", err)
	}
	printEpisodes(out, eps)
	return nil
}

func runJournalReport(cmd *cobra.Command, args []string) error {
	if journalRunID == "" {
		return fmt.Errorf("--run is required")
	}
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	r, err := j.Report(journalRunID)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return r.WriteOrg(cmd.OutOrStdout())
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	if journalRunID == "" {
		return fmt.Errorf("--run is required")
	}
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	trades, err := j.ListTrades(journalRunID, journalEnv, journalEpisode)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-20s %5s %6s %6s %12s %12s %10s %s\n", "time", "step", "from", "to", "units", "price", "fee", "reason")
	for _, t := range trades {
		fmt.Fprintf(out, "%-20s %5d %6.2f %6.2f %12.6f %12.4f %10.4f %s\n",
			t.Time.Format("2006-01-02 15:04:05"), t.Step, t.From, t.To, t.Units, t.Price, t.Fee, t.Reason)
	}
	return nil
}

func printRuns(w io.Writer, runs []journal.Run) {
	fmt.Fprintf(w, "%-26s  %-16s  %-10s  %-20s  %s\n", "run", "created", "agent", "seed", "dataset")
	for _, r := range runs {
		fmt.Fprintf(w, "%-26s  %-16s  %-10s  %-20d  %s\n",
			r.RunID, r.Created.Local().Format("2006-01-02 15:04"), r.Agent, r.Seed, r.Dataset)
	}
}

func printEpisodes(w io.Writer, eps []journal.EpisodeRecord) {
	fmt.Fprintf(w, "%-16s %4s %-20s %6s %9s %9s %5s\n", "env", "ep", "dataset", "steps", "market", "portf", "done")
	for _, e := range eps {
		fmt.Fprintf(w, "%-16s %4d %-20s %6d %8.2f%% %8.2f%% %5t\n",
			e.Env, e.Episode, e.Dataset, e.Steps, e.MarketReturn, e.PortfolioReturn, e.Done)
	}
}
