package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/keeper/internal/core/config"
	"github.com/vietddude/keeper/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the incident archive and active alerts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("Status requires database storage")
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

	incidents := postgres.NewIncidentRepo(db)
	alerts := postgres.NewAlertRepo(db)

	counts, err := incidents.CountByKind(ctx)
	if err != nil {
		slog.Error("Failed to query incidents", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ERROR KIND\tCOUNT")
	for kind, count := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", kind, count)
	}
	_ = w.Flush()

	active, err := alerts.GetActive(ctx)
	if err != nil {
		slog.Error("Failed to query alerts", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ALERT\tSEVERITY\tCOUNT\tSINCE\tMESSAGE")
	for _, a := range active {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Severity, a.Count, a.FirstSeen.Format("2006-01-02 15:04:05"), a.Message)
	}
	_ = w.Flush()

	recent, err := incidents.GetRecent(ctx, 10)
	if err != nil {
		slog.Error("Failed to query recent incidents", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RECENT\tKIND\tRETRIES\tAT\tMESSAGE")
	for _, inc := range recent {
		id := inc.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			id, inc.Kind, inc.RetryCount, inc.Timestamp.Format("2006-01-02 15:04:05"), inc.Message)
	}
	_ = w.Flush()
}
