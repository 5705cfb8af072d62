package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/keeper/internal/core/config"
)

var resetStatsCmd = &cobra.Command{
	Use:   "reset-stats",
	Short: "Reset the rolling request statistics of a running agent",
	Run:   runResetStats,
}

func init() {
	rootCmd.AddCommand(resetStatsCmd)
}

func runResetStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Stats live in the running process, so go through its health API.
	url := fmt.Sprintf("http://localhost:%d/health/reset-stats", cfg.Server.Port)
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		slog.Error("Failed to reach agent", "url", url, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Agent refused reset", "status", resp.Status)
		os.Exit(1)
	}

	fmt.Println("Request statistics reset")
}
