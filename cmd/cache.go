package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisdoc/internal/cas"
	"github.com/jcdickinson/ferrisdoc/internal/config"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete the parse memo",
	Long: `Delete the memo of per-file extraction results. The next analysis
re-parses every file. Stored records are not touched.`,
	Run: runClearCache,
}

func runClearCache(cmd *cobra.Command, args []string) {
	memo := cas.New(config.MemoDir())
	if err := memo.Clear(); err != nil {
		slog.Error("failed to clear cache", "error", err)
		os.Exit(1)
	}
	fmt.Printf("parse memo cleared: %s\n", memo.Dir())
}
