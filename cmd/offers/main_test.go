package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{"storage": {"driver": "sqlite", "path": %q}}`, filepath.Join(dir, "offers.db"))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

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

func TestAddAndList(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "list")
	require.NoError(t, err)
	require.Contains(t, out, "No offers found")

	out, err = run(t, "--config", cfg, "add", "--key", "pack_a", "--label", "Pack A")
	require.NoError(t, err)
	require.Contains(t, out, `Successfully added offer "pack_a"`)

	out, err = run(t, "--config", cfg, "add", "--key", "pack_a", "--label", "Pack A v2", "--asset-ref", "FILE")
	require.NoError(t, err)
	require.Contains(t, out, `Successfully updated offer "pack_a"`)

	out, err = run(t, "--config", cfg, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, []string{"KEY", "LABEL", "ACTIVE", "FILE", "SET"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"pack_a", "Pack", "A", "v2", "Yes", "Yes"}, strings.Fields(lines[1]))
}

func TestAddRejectsBadKey(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)

	_, err := run(t, "--config", cfg, "add", "--key", "Bad Key", "--label", "x")
	require.Error(t, err)

	_, err = run(t, "--config", cfg, "add", "--label", "x")
	require.ErrorContains(t, err, "key")
}
