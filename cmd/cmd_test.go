package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mezonai/mmn-storage/logx"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// resetFlags puts every flag back to its default so commands do not leak state into each other.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestPutRangeAndClear(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--path", dir, "--threads", "2", "--max-blocks", "2"}

	var hashes []string
	for _, s := range []string{"1,0", "1,1", "2,0"} {
		out := run(t, append([]string{"put", "--slot", s, "--payload", "p" + s}, common...)...)
		hashes = append(hashes, strings.TrimSpace(out))
	}

	out := run(t, append([]string{"range"}, common...)...)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "(period: 1, thread: 1)\t"+hashes[1], lines[0])
	assert.Equal(t, "(period: 2, thread: 0)\t"+hashes[2], lines[1])

	out = run(t, append([]string{"range", "--start", "2,0"}, common...)...)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out = run(t, append([]string{"get", "--hash", hashes[2]}, common...)...)
	assert.Contains(t, out, `"period": 2`)

	out = run(t, append([]string{"stats"}, common...)...)
	assert.Contains(t, out, `"blocks": 2`)

	run(t, append([]string{"clear"}, common...)...)
	out = run(t, append([]string{"stats"}, common...)...)
	assert.Contains(t, out, `"blocks": 0`)
}

func TestConfigFileWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[storage]\nmax_stored_blocks = 7\nthread_count = 4\npath = "+dir+"\n"), 0o644))

	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })
	require.NoError(t, rootCmd.ParseFlags([]string{"--config", cfgPath, "--threads", "8"}))

	cfg, err := resolveConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxStoredBlocks)
	assert.Equal(t, uint8(8), cfg.ThreadCount)
	assert.Equal(t, dir, cfg.Path)
}
