package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisdoc/internal/analyze"
	"github.com/jcdickinson/ferrisdoc/internal/cas"
	"github.com/jcdickinson/ferrisdoc/internal/config"
	"github.com/jcdickinson/ferrisdoc/internal/daemon"
	"github.com/jcdickinson/ferrisdoc/internal/rpc"
	"github.com/jcdickinson/ferrisdoc/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [package-dir]",
	Short: "Analyze a Rust package and store its public API",
	Long: `Resolve the package's Cargo.toml, walk its module tree from the entry file
and write one JSON record per crate, module, struct, enum and function.
The package directory defaults to the current directory.`,
	Example: `  ferrisdoc analyze
  ferrisdoc analyze ./my-crate --output ./api --overwrite
  ferrisdoc analyze --watch`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalyze,
}

var (
	analyzeOutput    string
	analyzeOverwrite bool
	analyzeWatch     bool
	analyzeLocal     bool
	analyzeJSON      bool
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "cache directory (default: configured cache_dir)")
	analyzeCmd.Flags().BoolVar(&analyzeOverwrite, "overwrite", false, "write into a non-empty --output directory")
	analyzeCmd.Flags().BoolVarP(&analyzeWatch, "watch", "w", false, "re-analyze when sources change")
	analyzeCmd.Flags().BoolVar(&analyzeLocal, "local", false, "analyze in this process instead of the daemon")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "output as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		slog.Error("invalid package directory", "error", err)
		os.Exit(1)
	}

	if analyzeOutput != "" && !analyzeOverwrite {
		empty, err := isEmptyDir(analyzeOutput)
		if err != nil {
			slog.Error("checking output directory", "error", err)
			os.Exit(1)
		}
		if !empty {
			slog.Error("output directory is not empty, pass --overwrite to write into it", "dir", analyzeOutput)
			os.Exit(1)
		}
	}

	if analyzeWatch {
		runWatch(dir)
		return
	}

	var sum *analyze.Summary
	if analyzeLocal {
		st, err := openStore(analyzeOutput)
		if err != nil {
			slog.Error("failed to open cache", "error", err)
			os.Exit(1)
		}
		sum, err = analyze.Run(context.Background(), dir, st, analysisOptions())
		if err != nil {
			slog.Error("analysis failed", "error", err)
			os.Exit(1)
		}
	} else {
		client, err := connectDaemon()
		if err != nil {
			slog.Error("failed to connect to daemon", "error", err)
			os.Exit(1)
		}
		resp, err := client.Analyze(context.Background(), rpc.AnalyzeRequest{Package: dir, Output: absOutput()})
		if err != nil {
			slog.Error("analysis failed", "error", err)
			os.Exit(1)
		}
		s := analyze.Summary(*resp)
		sum = &s
	}
	printSummary(sum)
}

func runWatch(dir string) {
	st, err := openStore(analyzeOutput)
	if err != nil {
		slog.Error("failed to open cache", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = analyze.Watch(ctx, dir, st, analyze.WatchOptions{
		Options:  analysisOptions(),
		Debounce: cfg.Watch.Debounce,
		OnRun: func(sum *analyze.Summary, err error) {
			if err != nil {
				slog.Error("analysis failed", "error", err)
				return
			}
			printSummary(sum)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watch failed", "error", err)
		os.Exit(1)
	}
}

func printSummary(sum *analyze.Summary) {
	if analyzeJSON {
		out, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Printf("  %s: %d modules, %d structs, %d enums, %d functions (%d records written)\n",
		sum.Crate, len(sum.Modules), len(sum.Structs), len(sum.Enums), len(sum.Functions), sum.Written)
}

// analysisOptions builds options for in-process runs.
func analysisOptions() analyze.Options {
	opts := analyze.Options{Logger: slog.Default()}
	if cfg.Memo.Enabled {
		opts.Memo = cas.New(config.MemoDir())
	}
	return opts
}

// openStore opens output, or the configured cache when output is empty.
func openStore(output string) (*store.Store, error) {
	root := output
	if root == "" {
		root = cfg.CacheDir
	}
	return store.Open(root, store.WithReadCache(cfg.Store.ReadCacheEntries))
}

// absOutput resolves --output against this process's working directory,
// since the daemon's may differ.
func absOutput() string {
	if analyzeOutput == "" {
		return ""
	}
	abs, err := filepath.Abs(analyzeOutput)
	if err != nil {
		return analyzeOutput
	}
	return abs
}

// isEmptyDir reports whether dir is missing or has no entries.
func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err == io.EOF {
		return true, nil
	} else if err != nil {
		return false, err
	}
	return false, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show analyzed crates",
	Run:   runStatus,
}

var (
	statusJSON   bool
	statusOutput string
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "cache directory (default: configured cache_dir)")
}

func runStatus(cmd *cobra.Command, args []string) {
	var resp *rpc.StatusResponse
	client := daemon.NewClient(config.SocketPath())
	if client.IsAvailable() {
		var err error
		output := statusOutput
		if output != "" {
			output, _ = filepath.Abs(output)
		}
		resp, err = client.Status(context.Background(), output)
		if err != nil {
			slog.Error("status failed", "error", err)
			os.Exit(1)
		}
	} else {
		st, err := openStore(statusOutput)
		if err != nil {
			slog.Error("failed to open cache", "error", err)
			os.Exit(1)
		}
		resp, err = daemon.StatusOf(st)
		if err != nil {
			slog.Error("status failed", "error", err)
			os.Exit(1)
		}
	}

	if statusJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(resp.Crates) == 0 {
		fmt.Println("no crates analyzed")
		return
	}

	for _, c := range resp.Crates {
		fmt.Printf("  %s@%s  %d modules, %d structs, %d enums, %d functions\n",
			c.Name, c.Version, c.Modules, c.Structs, c.Enums, c.Functions)
		if c.Summary != "" {
			fmt.Printf("    %s\n", c.Summary)
		}
	}
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Run:   runStop,
}

func runStop(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() {
		fmt.Println("daemon is not running")
		return
	}

	// Connection reset is expected, the daemon exits after responding.
	client.Shutdown(context.Background())
	fmt.Println("daemon stopped")
}
