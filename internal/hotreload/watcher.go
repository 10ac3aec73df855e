// Package hotreload watches a directory for opcode patch files and
// re-registers the corresponding opcode on the dispatcher when one
// lands or changes. It is a CLI convenience layered on top of
// Dispatcher.RegisterOpcode/UpdateOpcode. The core SFPM contract has no
// idea this package exists.
package hotreload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sfpm/internal/tiered"
)

// PatchLoader turns the contents of a patch file into a handler for the
// opcode the file names. Patch files are named "<opcode>.patch" (e.g.
// "2.patch" for opcode 2); the loader never sees the filename, only the
// parsed opcode and the raw file bytes.
type PatchLoader func(op tiered.Opcode, data []byte) (tiered.HandlerFunc, error)

// Stats tracks watcher activity, mirroring the shape of a typical
// filesystem-watcher's counters.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	PatchesLoaded int
	Errors        int
	LastEventPath string
	LastEventType string
}

// Watcher watches WatchDir for "<opcode>.patch" files and applies them to
// a Dispatcher via a PatchLoader.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dispatcher  *tiered.Dispatcher
	loader      PatchLoader
	watchDir    string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a Watcher for watchDir, applying patches to dispatcher via
// loader. debounce coalesces bursts of filesystem events for the same
// file; a zero value defaults to 200ms.
func New(watchDir string, dispatcher *tiered.Dispatcher, loader PatchLoader, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hotreload: create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	return &Watcher{
		watcher:     fw,
		dispatcher:  dispatcher,
		loader:      loader,
		watchDir:    watchDir,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching watchDir for changes. Non-blocking: the event
// loop runs in a goroutine until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.watchDir, 0755); err != nil {
		log.Printf("hotreload: failed to create watch dir %s: %v (continuing anyway)", w.watchDir, err)
	}

	if err := w.watcher.Add(w.watchDir); err != nil {
		log.Printf("hotreload: initial watch failed (dir may not exist yet): %v", err)
	} else {
		log.Printf("hotreload: watching directory: %s", w.watchDir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		log.Printf("hotreload: error closing watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("hotreload: watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".patch") {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	w.mu.Lock()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	case "delete", "rename":
		w.stats.FilesDeleted++
	}
	if eventType != "delete" && eventType != "rename" {
		w.debounceMap[event.Name] = time.Now()
	}
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.applyPatch(path)
	}
}

func (w *Watcher) applyPatch(path string) {
	op, err := parseOpcode(path)
	if err != nil {
		log.Printf("hotreload: skipping %s: %v", path, err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Printf("hotreload: failed to read %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	handler, err := w.loader(op, data)
	if err != nil {
		log.Printf("hotreload: patch loader rejected %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	if err := w.dispatcher.UpdateOpcode(op, handler, "hot-reload from "+path); err != nil {
		log.Printf("hotreload: failed to apply patch %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	log.Printf("hotreload: applied patch for opcode %d from %s", op, path)
	w.mu.Lock()
	w.stats.PatchesLoaded++
	w.mu.Unlock()
}

func parseOpcode(path string) (tiered.Opcode, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, ".patch")
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, fmt.Errorf("patch filename %q is not \"<opcode>.patch\"", base)
	}
	return tiered.Opcode(n), nil
}

// Stats snapshots the watcher's activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
