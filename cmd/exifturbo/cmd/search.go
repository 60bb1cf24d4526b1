package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/output"
	"github.com/exif-turbo/exifturbo/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	offset int
	sort   string
	desc   bool
	format string // "text", "json"
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the index",
		Long: `Search indexed metadata with a structured full-text query.

Bare words match any column; column:term restricts a term to one column.
Terms combine with AND (implicit), OR and NOT, and group with parentheses.
"Quoted phrases" match adjacent words and a trailing * matches a prefix.
An empty query lists every file.

Examples:
  exifturbo search 'make:canon lens:50mm'
  exifturbo search '"golden hour" OR keywords:sunset*' --sort date --desc
  exifturbo search 'NOT keywords:private' -n 100 -f json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, a, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Skip this many results")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "Sort by relevance or a column (path, date, make, iso, ...)")
	cmd.Flags().BoolVar(&opts.desc, "desc", false, "Reverse the sort order")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, q string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (supported: text, json)", opts.format)
	}
	if opts.offset < 0 {
		return fmt.Errorf("--offset must not be negative")
	}

	st, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	engine, err := a.newEngine(st)
	if err != nil {
		return err
	}

	slog.Info("search_started", slog.String("query", q), slog.Int("limit", opts.limit))
	res, err := engine.Search(ctx, q, query.Options{
		Limit:  opts.limit,
		Offset: opts.offset,
		Sort:   opts.sort,
		Desc:   opts.desc,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(res)
	}
	out.SearchResults(res)
	return nil
}
