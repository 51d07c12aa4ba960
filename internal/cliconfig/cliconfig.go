// Package cliconfig resolves process-level configuration: the corpus root
// directory, log level/format, and timeline cache capacity. Resolution
// order is flag > env > default, following the teacher's CODEX_HOME/
// CLAUDE_HOME detection in internal/config.
package cliconfig

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the resolved process configuration shared by every subcommand.
type Config struct {
	CorpusRoot            string
	LogLevel              string
	LogFormat             string
	LogFile               string
	TimelineCacheCapacity int

	// Format selects the rendering target for search/timeline/analytics/
	// export output: "md" (default), "html", or "json".
	Format string

	// Args holds the positional arguments left after flag parsing (e.g.
	// the search query or conversation id) — flag.FlagSet stops consuming
	// at the first non-flag token, so callers must pass flags before
	// positionals: `claudetools search --root <path> <query>`.
	Args []string
}

// Parse registers and parses the flag set, falling back to CLAUDE_TOOLS_*
// environment variables and finally to sensible defaults.
func Parse(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("claudetools", flag.ContinueOnError)

	defaultRoot, err := DetectCorpusRoot("")
	if err != nil {
		return cfg, err
	}

	fs.StringVar(&cfg.CorpusRoot, "root", defaultRoot, "path to the conversation corpus root")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("CLAUDE_TOOLS_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", envOr("CLAUDE_TOOLS_LOG_FORMAT", "text"), "log format: text or json")
	fs.StringVar(&cfg.LogFile, "log-file", envOr("CLAUDE_TOOLS_LOG_FILE", ""), "path to a rotating log file (stderr if empty)")
	fs.IntVar(&cfg.TimelineCacheCapacity, "timeline-cache-capacity", 16, "number of timeline artifacts to keep cached")
	fs.StringVar(&cfg.Format, "format", "md", "output format: md, html, or json")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.CorpusRoot, err = DetectCorpusRoot(cfg.CorpusRoot)
	if err != nil {
		return cfg, err
	}
	cfg.Args = fs.Args()

	return cfg, nil
}

// DetectCorpusRoot resolves the corpus root with explicit (--root) > env
// ($CLAUDE_TOOLS_HOME) > default (~/.claude) priority, mirroring the
// teacher's DetectCodexHome/DetectClaudeHome.
func DetectCorpusRoot(explicit string) (string, error) {
	if explicit != "" {
		return filepath.Clean(explicit), nil
	}
	if fromEnv := os.Getenv("CLAUDE_TOOLS_HOME"); fromEnv != "" {
		return filepath.Clean(fromEnv), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cliconfig: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
