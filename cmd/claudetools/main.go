// Command claudetools is the process entrypoint: resolve configuration,
// build the in-memory corpus, dispatch one query/timeline/analytics/export
// operation, and print the result. Grounded on DevScope's
// cmd/devscope/main.go index/search subcommand split — this repo's core
// has no cmd/ of its own to draw from, since every invariant lives in
// internal/{corpus,invindex,query,analytics,timeline} instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/heffrey78/claude-tools/internal/analytics"
	"github.com/heffrey78/claude-tools/internal/cliconfig"
	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/export"
	"github.com/heffrey78/claude-tools/internal/invindex"
	"github.com/heffrey78/claude-tools/internal/logx"
	"github.com/heffrey78/claude-tools/internal/query"
	"github.com/heffrey78/claude-tools/internal/timeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	cfg, err := cliconfig.Parse(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "claudetools: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer logx.Shutdown()
	log := logx.ForComponent(logx.CompCLI)

	switch command {
	case "search":
		runSearch(cfg, cfg.Args, log)
	case "timeline":
		runTimeline(cfg, cfg.Args, log)
	case "analytics":
		runAnalytics(cfg, log)
	case "export":
		runExport(cfg, cfg.Args, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func loadCorpus(ctx context.Context, cfg cliconfig.Config) (*corpus.Corpus, error) {
	// Conversation logs live under <root>/projects/<project>/<id>.jsonl.
	loader := corpus.NewLoader(filepath.Join(cfg.CorpusRoot, "projects"))
	c, err := loader.Load(ctx)
	if err != nil {
		if errors.Is(err, corpus.ErrCorpusMissing) {
			return nil, query.WrapCorpusMissing(err)
		}
		return nil, err
	}
	for _, d := range c.Diagnostics {
		fmt.Fprintf(os.Stderr, "warning: %s: %s (%s)\n", d.Path, d.Detail, d.Kind)
	}
	return c, nil
}

func runSearch(cfg cliconfig.Config, args []string, log *slog.Logger) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: claudetools search [--root <path>] [--format md|html|json] <query>")
		os.Exit(1)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		fail(err)
	}
	ctx := context.Background()

	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		fail(err)
	}
	idx, err := invindex.Build(ctx, c)
	if err != nil {
		fail(err)
	}

	req := query.SearchRequest{Query: args[0], Now: time.Now(), MaxResults: 50}
	results, summary, err := query.Search(ctx, c, idx, req)
	if err != nil {
		fail(err)
	}
	log.Info("search completed", "matched", summary.MatchedCount, "candidates", summary.TotalCandidates)

	out, err := export.RenderSearch(c, results, summary, format)
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}

func runTimeline(cfg cliconfig.Config, args []string, log *slog.Logger) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: claudetools timeline [--format md|html|json] <last-24h|last-48h|last-week|last-month>")
		os.Exit(1)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		fail(err)
	}
	ctx := context.Background()

	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		fail(err)
	}

	cache := timeline.NewCache(cfg.TimelineCacheCapacity)
	art, err := timeline.BuildCached(cache, c, timeline.Period(args[0]), time.Now(), false)
	if err != nil {
		fail(err)
	}
	log.Info("timeline built", "span", art.Span.String(), "bins", art.NumBins)

	out, err := export.RenderTimeline(art, format)
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}

func runAnalytics(cfg cliconfig.Config, log *slog.Logger) {
	format, err := parseFormat(cfg.Format)
	if err != nil {
		fail(err)
	}
	ctx := context.Background()

	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		fail(err)
	}

	memo := &analytics.Memo{}
	bundles, err := memo.Get(ctx, c)
	if err != nil {
		fail(err)
	}
	log.Info("analytics computed", "conversations", bundles.Basic.TotalConversations)

	out, err := export.RenderAnalytics(bundles, format)
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}

func runExport(cfg cliconfig.Config, args []string, log *slog.Logger) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: claudetools export [--root <path>] [--format md|html|json] <conversation-id>")
		os.Exit(1)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		fail(err)
	}
	ctx := context.Background()

	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		fail(err)
	}
	conv := c.ByID(args[0])
	if conv == nil {
		fmt.Fprintf(os.Stderr, "no such conversation: %s\n", args[0])
		os.Exit(1)
	}

	exporter, err := export.New("")
	if err != nil {
		fail(err)
	}
	path, err := exporter.Export(conv, format)
	if err != nil {
		fail(err)
	}
	log.Info("export written", "path", path)
	fmt.Println(path)
}

func parseFormat(s string) (export.Format, error) {
	switch export.Format(s) {
	case export.FormatMarkdown, export.FormatHTML, export.FormatJSON:
		return export.Format(s), nil
	default:
		return "", fmt.Errorf("claudetools: unknown --format %q (want md, html, or json)", s)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "claudetools: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("claudetools - local conversation log analytics")
	fmt.Println("Usage:")
	fmt.Println("  claudetools search [--root <path>] <query>     # ranked boolean/regex/fuzzy search")
	fmt.Println("  claudetools timeline <period>                  # last-24h, last-48h, last-week, last-month")
	fmt.Println("  claudetools analytics                          # corpus-wide usage bundles")
	fmt.Println("  claudetools export <conversation-id>           # write a transcript to disk")
}
