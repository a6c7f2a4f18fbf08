package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/fingerprint"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFingerprintCmd(t *testing.T) {
	out, err := run(t, "fingerprint", "What is Go?", "A language")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Compute("What is Go?", "A language")+"\n", out)

	_, err = run(t, "fingerprint", "only question")
	assert.Error(t, err)
}

func TestStudyFromSource(t *testing.T) {
	dir := t.TempDir()
	cards := filepath.Join(dir, "cards")
	require.NoError(t, os.Mkdir(cards, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cards, "go.md"),
		[]byte("Q: What keyword starts a goroutine?\nA: go\nC: Go\n"), 0o600))

	common := []string{
		"--config", filepath.Join(dir, "none.yaml"),
		"--dsn", filepath.Join(dir, "cards.db"),
		"--log-level", "error",
	}
	with := func(args ...string) []string { return append(args, common...) }

	out, err := run(t, with("migrate")...)
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version 1")

	out, err = run(t, with("source", "add", cards)...)
	require.NoError(t, err)
	assert.Contains(t, out, "added local source 1")

	out, err = run(t, with("source", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, cards)
	assert.Contains(t, out, "never")

	out, err = run(t, with("sync")...)
	require.NoError(t, err)
	assert.Contains(t, out, cards)

	out, err = run(t, with("next")...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.Equal(t, "0 due, 1 new", lines[0])
	assert.Contains(t, lines[2], "What keyword starts a goroutine?")
	cardID := strings.Fields(lines[2])[0]

	out, err = run(t, with("review", cardID, "--feedback", "got_it")...)
	require.NoError(t, err)
	assert.Contains(t, out, "repetitions 1, interval 1 days")

	_, err = run(t, with("review", cardID, "--quality", "9")...)
	assert.Error(t, err)

	// Another user sees nothing of the private card.
	out, err = run(t, with("next", "--user", "someone-else")...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "0 due, 0 new"), out)

	_, err = run(t, with("source", "remove", "1", "--user", "someone-else")...)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	out, err = run(t, with("source", "remove", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "removed source 1")

	_, err = run(t, with("source", "remove", "x")...)
	assert.Error(t, err)
}

func TestUnknownDriver(t *testing.T) {
	_, err := run(t, "next", "--driver", "mysql", "--config", "")
	assert.ErrorContains(t, err, "invalid config")
}
