package watcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingImporter counts lines as bookmarks and fails on "fail". Content
// starting with "saved-but-failed" reports its lines as stored and an error.
type recordingImporter struct {
	mu       sync.Mutex
	contents []string
}

func (r *recordingImporter) ImportNetscape(_ context.Context, rd io.Reader) (int, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.contents = append(r.contents, string(data))
	r.mu.Unlock()

	s := strings.TrimSpace(string(data))
	if s == "fail" {
		return 0, errors.New("unreadable")
	}
	if s == "" {
		return 0, nil
	}
	n := len(strings.Split(s, "\n"))
	if strings.HasPrefix(s, "saved-but-failed") {
		return n, errors.New("recount failed")
	}
	return n, nil
}

func (r *recordingImporter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func runInbox(t *testing.T, dir string, imp Importer) {
	t.Helper()

	in, err := NewInbox(dir, imp, discardLogger(), Options{SettleDelay: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("inbox did not stop")
		}
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewInbox_CreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")

	in, err := NewInbox(dir, &recordingImporter{}, discardLogger(), Options{})
	require.NoError(t, err)
	defer in.watcher.Stop() //nolint:errcheck // Test cleanup

	assert.DirExists(t, filepath.Join(dir, ProcessedDir))
	assert.DirExists(t, filepath.Join(dir, RejectedDir))
}

func TestInbox_ImportsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	runInbox(t, dir, imp)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bookmarks.html"), []byte("a\nb"), 0o644))

	processed := filepath.Join(dir, ProcessedDir, "bookmarks.html")
	require.Eventually(t, func() bool { return exists(processed) }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, exists(filepath.Join(dir, "bookmarks.html")))
	assert.Equal(t, 1, imp.calls())
}

func TestInbox_ImportsExistingFilesOnStart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.HTM"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("a"), 0o644))

	imp := &recordingImporter{}
	runInbox(t, dir, imp)

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, ProcessedDir, "old.HTM"))
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, exists(filepath.Join(dir, "notes.txt")), "non-HTML files are left alone")
}

func TestInbox_RejectsFailures(t *testing.T) {
	dir := t.TempDir()
	runInbox(t, dir, &recordingImporter{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.html"), []byte("fail"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.html"), []byte(""), 0o644))

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, RejectedDir, "broken.html")) &&
			exists(filepath.Join(dir, RejectedDir, "empty.html"))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInbox_ProcessesFilesWithStoredBookmarksDespiteErrors(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	runInbox(t, dir, imp)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.html"), []byte("saved-but-failed\nb"), 0o644))

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, ProcessedDir, "partial.html"))
	}, 5*time.Second, 20*time.Millisecond)
	assert.False(t, exists(filepath.Join(dir, RejectedDir, "partial.html")))
	assert.Equal(t, 1, imp.calls())
}

func TestInbox_MoveKeepsEarlierFiles(t *testing.T) {
	dir := t.TempDir()
	in, err := NewInbox(dir, &recordingImporter{}, discardLogger(), Options{})
	require.NoError(t, err)
	defer in.watcher.Stop() //nolint:errcheck // Test cleanup
	in.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	for range 2 {
		src := filepath.Join(dir, "bookmarks.html")
		require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
		require.NoError(t, in.move(src, ProcessedDir))
	}

	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "bookmarks.html"))
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "20240501T120000.000-bookmarks.html"))
}
