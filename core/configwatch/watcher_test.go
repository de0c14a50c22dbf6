package configwatch_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jdelaire/osonbot/core/configwatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string) *atomic.Int32 {
	t.Helper()
	var called atomic.Int32
	w := configwatch.New(50*time.Millisecond, testLogger())
	w.Watch(path, func(got string) {
		if got != path {
			t.Errorf("callback path = %q, want %q", got, path)
		}
		called.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return &called
}

func waitCalled(t *testing.T, called *atomic.Int32) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for called.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for change callback")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(path, []byte("rules: []\n"), 0644)

	called := startWatcher(t, path)
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(path, []byte("rules:\n  - when: [\"/a\"]\n    text: a\n"), 0644)

	waitCalled(t, called)
}

func TestWatcherNoCallbackWithoutChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(path, []byte("rules: []\n"), 0644)

	called := startWatcher(t, path)
	time.Sleep(200 * time.Millisecond)

	if n := called.Load(); n != 0 {
		t.Errorf("callback fired %d times without file change", n)
	}
}

func TestWatcherIgnoresDeletedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(path, []byte("rules: []\n"), 0644)

	called := startWatcher(t, path)
	time.Sleep(100 * time.Millisecond)
	os.Remove(path)
	time.Sleep(200 * time.Millisecond)

	if n := called.Load(); n != 0 {
		t.Errorf("callback fired %d times for deleted file", n)
	}
}

func TestWatcherDetectsNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")

	called := startWatcher(t, path)
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(path, []byte("rules: []\n"), 0644)

	waitCalled(t, called)
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	w := configwatch.New(0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancel")
	}
}
