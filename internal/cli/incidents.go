package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/overseer/internal/core/config"
	"github.com/vietddude/overseer/internal/infra/storage/postgres"
)

var incidentsOpenOnly bool

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Show recent incidents from the database",
	Run:   runIncidents,
}

func init() {
	incidentsCmd.Flags().BoolVar(&incidentsOpenOnly, "open", false, "show only open incidents")
	rootCmd.AddCommand(incidentsCmd)
}

func runIncidents(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	query := "SELECT id, unit_name, status, outcome, COALESCE(playbook, ''), synthetic, created_at FROM incidents ORDER BY created_at DESC LIMIT 50"
	if incidentsOpenOnly {
		query = "SELECT id, unit_name, status, outcome, COALESCE(playbook, ''), synthetic, created_at FROM incidents WHERE status = 'open' ORDER BY created_at DESC LIMIT 50"
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("Failed to query incidents", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tUNIT\tSTATUS\tOUTCOME\tPLAYBOOK\tSYNTHETIC\tCREATED")

	for rows.Next() {
		var id, unitName, status, outcome, playbook string
		var synthetic bool
		var createdAt time.Time
		if err := rows.Scan(&id, &unitName, &status, &outcome, &playbook, &synthetic, &createdAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%.8s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			id, unitName, status, outcome, playbook, synthetic, createdAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
