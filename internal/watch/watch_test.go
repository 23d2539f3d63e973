package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/easyrelease/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "Cargo.toml")
	other := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(watched, []byte("[package]\n"), 0o600))

	w, err := New([]string{watched}, WithDebounce(20*time.Millisecond), WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(changed []string) { batches <- changed })
	}()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(watched, []byte("[package]\nname = \"a\"\n"), 0o600))
	require.NoError(t, os.WriteFile(watched, []byte("[package]\nname = \"b\"\n"), 0o600))

	select {
	case changed := <-batches:
		assert.Equal(t, []string{watched}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing", "Cargo.toml")})
	assert.Error(t, err)
}
