package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisdoc/internal/config"
	"github.com/jcdickinson/ferrisdoc/internal/db"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached records into a DuckDB database",
	Long: `Copy every cached crate into the tables crates, entities and fields of a
DuckDB database. Re-exporting a crate replaces its earlier rows.`,
	Example: `  ferrisdoc export
  ferrisdoc export --db api.duckdb --output ./api`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

var (
	exportDB     string
	exportOutput string
)

func init() {
	exportCmd.Flags().StringVar(&exportDB, "db", "", "database file (default: export.duckdb in the cache base)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "cache directory (default: configured cache_dir)")
}

func runExport(cmd *cobra.Command, args []string) {
	dbPath := exportDB
	if dbPath == "" {
		dbPath = config.DBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		slog.Error("failed to create database directory", "error", err)
		os.Exit(1)
	}

	st, err := openStore(exportOutput)
	if err != nil {
		slog.Error("failed to open cache", "error", err)
		os.Exit(1)
	}

	database, err := db.New(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	stats, err := db.Export(context.Background(), st, database, slog.Default())
	if err != nil {
		slog.Error("export failed", "error", err)
		database.Close()
		os.Exit(1)
	}
	fmt.Printf("exported %d crates, %d records to %s\n", stats.Crates, stats.Entities, dbPath)
}
