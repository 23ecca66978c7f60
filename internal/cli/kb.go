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
	redisclient "github.com/vietddude/overseer/internal/infra/redis"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect and manage the failure knowledge base",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known failure signatures and their confidence",
	Run:   runKBList,
}

var kbResetCmd = &cobra.Command{
	Use:   "reset [signature]",
	Short: "Forget a failure signature, or everything with --all",
	Args:  cobra.MaximumNArgs(1),
	Run:   runKBReset,
}

var kbResetAll bool

func init() {
	kbResetCmd.Flags().BoolVar(&kbResetAll, "all", false, "forget every signature")
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbResetCmd)
	rootCmd.AddCommand(kbCmd)
}

func kbRepo() (*redisclient.KnowledgeRepo, func()) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		slog.Error("Knowledge base commands need redis.url in the config")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return redisclient.NewKnowledgeRepo(client), func() { _ = client.Close() }
}

func runKBList(cmd *cobra.Command, args []string) {
	repo, cleanup := kbRepo()
	defer cleanup()

	entries, err := repo.List(context.Background())
	if err != nil {
		slog.Error("Failed to list knowledge entries", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SIGNATURE\tPLAYBOOK\tCONFIDENCE\tAUTO\tOK\tFAIL\tLAST USED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%.12s\t%s\t%.2f\t%t\t%d\t%d\t%s\n",
			e.Signature, e.PlaybookName, e.Confidence, e.AutoApply,
			e.SuccessCount, e.FailureCount, e.LastUsed.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func runKBReset(cmd *cobra.Command, args []string) {
	repo, cleanup := kbRepo()
	defer cleanup()

	ctx := context.Background()
	if kbResetAll {
		if err := repo.DeleteAll(ctx); err != nil {
			slog.Error("Failed to reset knowledge base", "error", err)
			os.Exit(1)
		}
		fmt.Println("Knowledge base cleared")
		return
	}

	if len(args) != 1 {
		fmt.Println("Provide a signature, or --all")
		os.Exit(1)
	}
	if err := repo.Delete(ctx, args[0]); err != nil {
		slog.Error("Failed to delete signature", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Forgot signature %s\n", args[0])
}
