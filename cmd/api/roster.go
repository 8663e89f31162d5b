package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"barangay/api/internal/roster"
	"barangay/api/internal/store"
)

var (
	rosterUnit string
	rosterAsOf string
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Print the resolved officials roster of a unit",
	Long: `Print the canonical officials roster of a unit as it would appear on a
certificate issued on the given date.

Examples:
  # Roster for today
  barangay roster --unit brgy-san-isidro

  # Roster as of a past date
  barangay roster --unit brgy-san-isidro --as-of 2024-01-15`,
	RunE: runRoster,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.Flags().StringVarP(&rosterUnit, "unit", "u", "", "Administrative unit id")
	rosterCmd.Flags().StringVarP(&rosterAsOf, "as-of", "d", time.Now().Format(time.DateOnly), "Reference date (YYYY-MM-DD)")
	_ = rosterCmd.MarkFlagRequired("unit")
}

func runRoster(cmd *cobra.Command, args []string) error {
	asOf, err := time.Parse(time.DateOnly, rosterAsOf)
	if err != nil {
		return errors.New("--as-of must be YYYY-MM-DD")
	}

	ctx := cmd.Context()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	repo := store.NewPostgresStore(db, logger)

	officials, err := repo.ListOfficials(ctx, rosterUnit)
	if err != nil {
		return err
	}
	entries := roster.Assign(officials, asOf, roster.CanonicalPositions(), roster.DefaultRules())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tNAME\tMATCHED BY")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Position, entry.Name, entry.MatchedBy)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, o := range roster.Unplaced(officials, asOf, entries) {
		logger.Warn("active official left off the roster", "official_id", o.ID, "name", o.Name, "position", o.Position)
	}
	return nil
}
