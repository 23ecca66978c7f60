package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/overseer/internal/core/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of all supervised units",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// unitRow matches the /units response shape of the health server.
type unitRow struct {
	Name         string `json:"name"`
	Tier         int    `json:"tier"`
	State        string `json:"state"`
	RestartCount int    `json:"restart_count"`
	MaxRestarts  int    `json:"max_restarts"`
	LastError    string `json:"last_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/units", cfg.Server.Port))
	if err != nil {
		slog.Error("Failed to reach overseer, is it running?", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var units []unitRow
	if err := json.NewDecoder(resp.Body).Decode(&units); err != nil {
		slog.Error("Failed to decode response", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "UNIT\tTIER\tSTATE\tRESTARTS\tLAST ERROR")
	for _, u := range units {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d/%d\t%s\n",
			u.Name, u.Tier, u.State, u.RestartCount, u.MaxRestarts, u.LastError)
	}
	_ = w.Flush()
}
