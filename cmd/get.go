package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisdoc/internal/config"
	"github.com/jcdickinson/ferrisdoc/internal/daemon"
	md "github.com/jcdickinson/ferrisdoc/internal/markdown"
	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/rpc"
	"github.com/jcdickinson/ferrisdoc/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <category> <path>",
	Short: "Print the record at a path",
	Example: `  ferrisdoc get structs my_crate::config::Options
  ferrisdoc get crate my_crate`,
	Args: cobra.ExactArgs(2),
	Run:  queryRunner(store.One),
}

var childrenCmd = &cobra.Command{
	Use:     "children <category> <path>",
	Short:   "Print records exactly one level below a path",
	Example: `  ferrisdoc children modules my_crate`,
	Args:    cobra.ExactArgs(2),
	Run:     queryRunner(store.Children),
}

var descendantsCmd = &cobra.Command{
	Use:   "descendants <category> <path>",
	Short: "Print every record below a path",
	Example: `  ferrisdoc descendants structs my_crate::net
  ferrisdoc descendants modules my_crate --self`,
	Args: cobra.ExactArgs(2),
	Run:  queryRunner(store.Descendants),
}

var prefixCmd = &cobra.Command{
	Use:   "prefix <category> <string>",
	Short: "Print records whose display path starts with a string",
	Long: `Match records by plain string prefix of their display path. Unlike
descendants, my_crate::Foo also matches my_crate::FooBar.`,
	Example: `  ferrisdoc prefix functions my_crate::util::parse_`,
	Args:    cobra.ExactArgs(2),
	Run:     queryRunner(store.Prefix),
}

var (
	queryOutput      string
	queryIncludeSelf bool
	queryPaths       bool
)

func init() {
	for _, c := range []*cobra.Command{getCmd, childrenCmd, descendantsCmd, prefixCmd} {
		c.Flags().StringVarP(&queryOutput, "output", "o", "", "cache directory (default: configured cache_dir)")
		c.Flags().BoolVar(&queryPaths, "paths", false, "print paths with summaries instead of JSON")
	}
	descendantsCmd.Flags().BoolVar(&queryIncludeSelf, "self", false, "include the record at the path itself")
}

func queryRunner(mode store.Mode) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		cat, err := model.ParseCategory(args[0])
		if err != nil {
			slog.Error("invalid category", "error", err)
			os.Exit(1)
		}
		req := rpc.LoadRequest{Category: string(cat), Mode: string(mode), IncludeSelf: queryIncludeSelf}
		if mode == store.Prefix {
			req.Prefix = args[1]
		} else {
			req.Path = args[1]
		}

		items, err := loadItems(req)
		if err != nil {
			slog.Error("load failed", "error", err)
			os.Exit(1)
		}
		if mode == store.One && len(items) == 0 {
			slog.Error("no record", "category", cat, "path", args[1])
			os.Exit(1)
		}
		printItems(items)
	}
}

// loadItems asks a running daemon, falling back to reading the cache in
// process. A query never spawns the daemon.
func loadItems(req rpc.LoadRequest) ([]json.RawMessage, error) {
	client := daemon.NewClient(config.SocketPath())
	if client.IsAvailable() {
		if queryOutput != "" {
			req.Output, _ = filepath.Abs(queryOutput)
		}
		resp, err := client.Load(context.Background(), req)
		if err != nil {
			return nil, err
		}
		return resp.Items, nil
	}

	st, err := openStore(queryOutput)
	if err != nil {
		return nil, err
	}
	entities, err := st.Load(model.Category(req.Category), store.Query{
		Mode:        store.Mode(req.Mode),
		Path:        model.ParsePath(req.Path),
		Prefix:      req.Prefix,
		IncludeSelf: req.IncludeSelf,
	})
	if err != nil {
		return nil, err
	}
	items := make([]json.RawMessage, 0, len(entities))
	for _, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return items, nil
}

// listing holds the fields every record shares.
type listing struct {
	Path      model.Path `json:"path"`
	Name      string     `json:"name"`
	Docstring string     `json:"docstring"`
}

func printItems(items []json.RawMessage) {
	if !queryPaths {
		out, _ := json.MarshalIndent(items, "", "  ")
		fmt.Println(string(out))
		return
	}
	for _, raw := range items {
		var l listing
		if err := json.Unmarshal(raw, &l); err != nil {
			slog.Error("decoding record", "error", err)
			continue
		}
		path := l.Path.String()
		if path == "" {
			path = l.Name
		}
		if s := md.Summary(l.Docstring); s != "" {
			fmt.Printf("  %s  %s\n", path, s)
		} else {
			fmt.Printf("  %s\n", path)
		}
	}
}
