package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectCorpusRootExplicitWins(t *testing.T) {
	t.Setenv("CLAUDE_TOOLS_HOME", "/env/path")
	root, err := DetectCorpusRoot("/explicit/path")
	require.NoError(t, err)
	require.Equal(t, "/explicit/path", root)
}

func TestDetectCorpusRootFallsBackToEnv(t *testing.T) {
	t.Setenv("CLAUDE_TOOLS_HOME", "/env/path")
	root, err := DetectCorpusRoot("")
	require.NoError(t, err)
	require.Equal(t, "/env/path", root)
}

func TestDetectCorpusRootDefaultsUnderHome(t *testing.T) {
	t.Setenv("CLAUDE_TOOLS_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	root, err := DetectCorpusRoot("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".claude"), root)
}

func TestParseAppliesFlags(t *testing.T) {
	cfg, err := Parse([]string{"--root", "/tmp/corpus", "--log-level", "debug", "--timeline-cache-capacity", "32"})
	require.NoError(t, err)
	require.Equal(t, "/tmp/corpus", cfg.CorpusRoot)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 32, cfg.TimelineCacheCapacity)
}

func TestParseDefaultsLogFormatToText(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, 16, cfg.TimelineCacheCapacity)
	require.Equal(t, "md", cfg.Format)
}

func TestParseFormatFlagAndPositionalArgs(t *testing.T) {
	cfg, err := Parse([]string{"--format", "json", "query", "terms"})
	require.NoError(t, err)
	require.Equal(t, "json", cfg.Format)
	require.Equal(t, []string{"query", "terms"}, cfg.Args)
}
