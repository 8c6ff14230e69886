// Package watcher observes the module directory and the configuration file
// after startup. Modules load exactly once per process, so nothing here
// reloads anything; the watcher's job is to tell the operator when what is
// on disk has drifted from what is serving.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mammothweb/mammoth/internal/config"
	"github.com/mammothweb/mammoth/internal/logging"
)

// FileWatcher watches paths and delivers debounced change batches to its
// handlers. Rapid bursts, like a compiler replacing a library, collapse
// into one batch.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	logger    logging.Logger

	mutex    sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler
}

// ChangeEvent is one observed file change.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType classifies a file change.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
	EventRenamed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path is interesting. All filters must agree
// before an event is kept.
type FileFilter func(path string) bool

// ChangeHandler receives one debounced batch. Errors are logged and do not
// stop the watcher.
type ChangeHandler func(events []ChangeEvent) error

type debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	mutex   sync.Mutex
	timer   *time.Timer
	pending []ChangeEvent
}

// New creates a watcher that groups changes arriving within debounceDelay
// of each other.
func New(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		debouncer: &debouncer{
			delay:  debounceDelay,
			events: make(chan ChangeEvent, 100),
			output: make(chan []ChangeEvent, 10),
		},
		logger: logger.WithComponent("watcher"),
	}, nil
}

// AddFilter narrows which paths produce events.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler registers a recipient for debounced batches.
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath starts watching a file or directory. Directories are not
// recursed into; the module directory is flat.
func (fw *FileWatcher) AddPath(path string) error {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve watch path %q: %w", path, err)
	}
	if err := fw.watcher.Add(abs); err != nil {
		return fmt.Errorf("watch %q: %w", abs, err)
	}
	return nil
}

// Start launches the watch loops. They run until ctx is cancelled.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.debouncer.run(ctx)
	go fw.deliver(ctx)
	go fw.watch(ctx)
}

// Stop closes the underlying watcher. Pending batches are dropped.
func (fw *FileWatcher) Stop() error {
	fw.debouncer.mutex.Lock()
	if fw.debouncer.timer != nil {
		fw.debouncer.timer.Stop()
	}
	fw.debouncer.mutex.Unlock()

	return fw.watcher.Close()
}

func (fw *FileWatcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.observe(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) observe(event fsnotify.Event) {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var modTime time.Time
	var size int64
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventCreated
	case event.Op.Has(fsnotify.Write):
		eventType = EventModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventRenamed
	default:
		eventType = EventModified
	}

	select {
	case fw.debouncer.events <- ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	}:
	default:
		// Burst larger than the buffer; dropping is fine, the batch that
		// does get through carries the same message.
	}
}

func (fw *FileWatcher) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Error(ctx, err, "change handler failed")
				}
			}
		}
	}
}

func (d *debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.add(event)
		}
	}
}

func (d *debouncer) add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Last event per path wins within a batch.
	byPath := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		byPath[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(byPath))
	for _, event := range byPath {
		events = append(events, event)
	}

	select {
	case d.output <- events:
	default:
	}

	d.pending = d.pending[:0]
}

// LibraryFilter keeps only module libraries.
func LibraryFilter(path string) bool {
	return filepath.Ext(path) == config.LibraryExt()
}

// ExactFilter keeps only the given file, typically the configuration file.
func ExactFilter(target string) FileFilter {
	cleaned := filepath.Clean(target)
	return func(path string) bool {
		return filepath.Clean(path) == cleaned
	}
}

// RestartNotices returns a handler that logs each changed path as an
// operator notice. The running process keeps serving what it loaded.
func RestartNotices(logger logging.Logger) ChangeHandler {
	log := logger.WithComponent("watcher")
	return func(events []ChangeEvent) error {
		for _, event := range events {
			log.Warn(context.Background(), nil,
				"file changed after startup; restart to apply",
				"path", event.Path,
				"change", event.Type.String())
		}
		return nil
	}
}
