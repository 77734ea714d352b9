// Package watch re-encodes image files as they appear or change under the
// watched roots. Events are debounced per path, and events caused by the
// tool's own writes are suppressed for a cooldown window.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Defaults for the event timing knobs.
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultCooldown = 2 * time.Second
)

// Handler processes one settled path. Paths are always absolute.
type Handler func(ctx context.Context, path string) error

// Logger is the minimal logging interface used by the watcher.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// Watcher turns filesystem events into Handler calls.
type Watcher struct {
	fs        *fsnotify.Watcher
	exts      map[string]bool
	recursive bool
	handle    Handler
	target    func(string) string
	log       Logger
	debounce  time.Duration
	cooldown  time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	written map[string]time.Time // path -> end of suppression window

	handleMu sync.Mutex // handler calls are serialized
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is handled.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithTarget maps a source path to the path the handler writes, so events
// on that path are ignored while it is handled and for the cooldown after.
// Without it the handler is assumed to rewrite the source in place.
func WithTarget(fn func(string) string) Option { return func(w *Watcher) { w.target = fn } }

// WithCooldown sets how long events on a just-written path are ignored.
func WithCooldown(d time.Duration) Option { return func(w *Watcher) { w.cooldown = d } }

// New watches roots (and their non-hidden subdirectories when recursive)
// for files with one of exts.
func New(roots, exts []string, recursive bool, handle Handler, log Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fs:        fsw,
		exts:      make(map[string]bool, len(exts)),
		recursive: recursive,
		handle:    handle,
		target:    func(p string) string { return p },
		log:       log,
		debounce:  DefaultDebounce,
		cooldown:  DefaultCooldown,
		timers:    make(map[string]*time.Timer),
		written:   make(map[string]time.Time),
	}
	for _, e := range exts {
		w.exts[strings.ToLower(e)] = true
	}
	for _, o := range opts {
		o(w)
	}

	for _, root := range roots {
		if err := w.addTree(canonical(root)); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	if !w.recursive {
		if err := w.fs.Add(root); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", root, err)
		}
		w.log.Info("Watching folder: %s", root)
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", path, err)
		}
		w.log.Debug("Watching folder: %s", path)
		return nil
	})
}

// Run processes events until ctx is canceled, then waits for in-flight
// handlers and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.wg.Wait()
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			w.onEvent(ctx, ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("Watcher event queue overflowed; some changes may be missed")
				continue
			}
			w.log.Error("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) onEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	path := canonical(ev.Name)
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}

	if w.recursive && ev.Has(fsnotify.Create) && isDir(path) {
		if err := w.addTree(path); err != nil {
			w.log.Warn("%v", err)
		}
		return
	}
	if !w.exts[strings.ToLower(filepath.Ext(name))] {
		return
	}
	if w.suppressed(path) {
		w.log.Debug("Ignoring own write: %s", path)
		return
	}
	w.schedule(ctx, path)
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		w.fire(ctx, path)
	})
	w.timers[path] = t
}

func (w *Watcher) fire(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	w.handleMu.Lock()
	defer w.handleMu.Unlock()

	dest := w.target(path)
	if dest != "" {
		dest = canonical(dest)
		w.suppress(dest, time.Now().Add(time.Hour))
		defer func() { w.suppress(dest, time.Now().Add(w.cooldown)) }()
	}
	if err := w.handle(ctx, path); err != nil && ctx.Err() == nil {
		w.log.Error("Failed: %s: %v", path, err)
	}
}

func (w *Watcher) suppress(path string, until time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written[path] = until
}

func (w *Watcher) suppressed(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	until, ok := w.written[path]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(w.written, path)
		return false
	}
	return true
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}

// canonical is the absolute, cleaned form used for every path key, so event
// names from relative roots match the targets the handler reports.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
