package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sfpm/internal/tiered"
)

func textLoader(op tiered.Opcode, data []byte) (tiered.HandlerFunc, error) {
	switch string(data) {
	case "add_buggy":
		return tiered.HandleAddBuggy, nil
	default:
		return tiered.HandleAdd, nil
	}
}

func newTestDispatcher(t *testing.T) *tiered.Dispatcher {
	t.Helper()
	d := tiered.NewDispatcher()
	for op, h := range tiered.DefaultHandlers() {
		if err := d.RegisterOpcode(op, h); err != nil {
			t.Fatalf("RegisterOpcode(%d) error = %v", op, err)
		}
	}
	d.EnterCachedMode()
	return d
}

func TestWatcherAppliesPatchFile(t *testing.T) {
	dir := t.TempDir()
	d := newTestDispatcher(t)

	w, err := New(dir, d, textLoader, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	patchPath := filepath.Join(dir, "2.patch")
	if err := os.WriteFile(patchPath, []byte("add_buggy"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Stats().PatchesLoaded > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w.Stats().PatchesLoaded == 0 {
		t.Fatal("expected the watcher to load the patch within the deadline")
	}
}

func TestParseOpcodeRejectsNonNumericName(t *testing.T) {
	if _, err := parseOpcode("/tmp/not-a-number.patch"); err == nil {
		t.Error("expected an error for a non-numeric patch filename")
	}
}

func TestParseOpcodeAcceptsNumericName(t *testing.T) {
	op, err := parseOpcode("/tmp/5.patch")
	if err != nil {
		t.Fatalf("parseOpcode() error = %v", err)
	}
	if op != tiered.Opcode(5) {
		t.Errorf("parseOpcode() = %d, want 5", op)
	}
}
