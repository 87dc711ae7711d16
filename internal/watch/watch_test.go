package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) onChange(_ context.Context, changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changed)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func TestNewRequiresExistingDir(t *testing.T) {
	root := t.TempDir()
	_, err := New(root, []string{"src", "app"}, 0, func(context.Context, []string) {})
	assert.Error(t, err)

	_, err = New(root, []string{"src"}, 0, nil)
	assert.Error(t, err)
}

func TestIgnored(t *testing.T) {
	root := t.TempDir()
	w := &Watcher{root: root, excludes: []string{"**/*.test.tsx", "src/generated/**"}}

	tests := []struct {
		rel  string
		want bool
	}{
		{"src/App.tsx", false},
		{"src/.cache/x.ts", true},
		{"src/node_modules/lib/index.ts", true},
		{"src/App.test.tsx", true},
		{"src/generated/api.ts", true},
		{"src/generatedish.ts", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ignored(filepath.Join(root, filepath.FromSlash(tt.rel))))
		})
	}
}

func TestRunCoalescesChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pages"), 0755))

	rec := &recorder{}
	w, err := New(root, []string{"src"}, 100*time.Millisecond, rec.onChange)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.ts"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "pages", "b.tsx"), []byte("b"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", ".cache"), 0755))

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 20*time.Millisecond)
	first := rec.snapshot()[0]
	assert.Contains(t, first, "src/a.ts")
	assert.Contains(t, first, "src/pages/b.tsx")
	assert.NotContains(t, first, "src/.cache")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))

	rec := &recorder{}
	w, err := New(root, []string{"src"}, 50*time.Millisecond, rec.onChange)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "features"), 0755))
	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "features", "c.ts"), []byte("c"), 0644))
	require.Eventually(t, func() bool {
		for _, batch := range rec.snapshot() {
			for _, p := range batch {
				if p == "src/features/c.ts" {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}
