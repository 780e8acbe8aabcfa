// Package watcher runs the quality-control pipeline automatically against
// deliveries dropped into a watched folder. A delivery is one top-level
// subdirectory; it is checked after no filesystem activity has been seen
// under it for the settle period, so half-transferred trees are not judged.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/archivetools/aqc/internal/batch"
	"github.com/fsnotify/fsnotify"
	"github.com/ubuntu/decorate"
)

// DefaultSettle is how long a delivery must stay quiet before it is checked.
const DefaultSettle = 30 * time.Second

// Report is the outcome of one automatic check.
type Report struct {
	Delivery     string // top-level subdirectory name
	ManifestPath string
	Overall      string
	Err          error
}

// Config represents the data needed to run the watcher.
type Config struct {
	Dir        string // dropbox folder receiving deliveries
	PolicyPath string
	Operator   string
	Settle     time.Duration // quiet period before a delivery is checked
}

// Sanitize sets defaults and checks that the Config is properly configured.
func (c *Config) Sanitize(l *slog.Logger) error {
	if c.Dir == "" {
		return errors.New("watch directory must be provided")
	}

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve watch directory: %v", err)
	}
	c.Dir = dir

	fi, err := os.Stat(c.Dir)
	if err != nil {
		return fmt.Errorf("could not read watch directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", c.Dir)
	}

	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}

	return nil
}

// Watcher monitors a dropbox folder and checks settled deliveries.
type Watcher struct {
	config  Config
	checked map[string]bool // deliveries already checked this run
	timers  map[string]*time.Timer
	mu      sync.Mutex
	wg      sync.WaitGroup

	run func(ctx context.Context, delivery string) Report

	log *slog.Logger
}

// New returns a Watcher for the given config. Sanitizes the config.
func New(l *slog.Logger, c Config) (*Watcher, error) {
	if err := c.Sanitize(l); err != nil {
		return nil, err
	}

	w := &Watcher{
		config:  c,
		checked: make(map[string]bool),
		timers:  make(map[string]*time.Timer),
		log:     l,
	}
	w.run = w.checkDelivery
	return w, nil
}

// Watch blocks until ctx is cancelled, emitting a Report on the returned
// channel for every delivery that settles and gets checked. Deliveries
// already present at startup are scheduled immediately.
func (w *Watcher) Watch(ctx context.Context) (reports <-chan Report, err error) {
	defer decorate.OnError(&err, "could not watch %s", w.config.Dir)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %v", err)
	}
	if err := fsw.Add(w.config.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to add directory %s to watcher: %v", w.config.Dir, err)
	}

	reportsCh := make(chan Report, 1)
	w.log.Info("Watching for deliveries", "dir", w.config.Dir, "settle", w.config.Settle)

	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := watchTree(fsw, filepath.Join(w.config.Dir, e.Name())); err != nil {
				w.log.Warn("Could not watch delivery tree", "delivery", e.Name(), "err", err)
			}
			w.schedule(ctx, e.Name(), reportsCh)
		}
	}

	go func() {
		defer close(reportsCh)
		defer fsw.Close()

		for {
			select {
			case <-ctx.Done():
				w.log.Info("Delivery watcher stopped")
				w.stopTimers()
				w.wg.Wait()
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}

				delivery := w.deliveryFor(event.Name)
				if delivery == "" {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
						if err := watchTree(fsw, event.Name); err != nil {
							w.log.Warn("Could not watch new directory", "dir", event.Name, "err", err)
						}
					}
				}
				w.schedule(ctx, delivery, reportsCh)

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return reportsCh, nil
}

// watchTree registers path and every directory below it with the notifier.
// The notifications are not recursive, so directories must be added as they
// appear for deep writes to keep pushing a delivery's settle timer back.
func watchTree(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return fsw.Add(p)
	})
}

// deliveryFor maps an event path to its top-level delivery name, or "" when
// the event is not about a delivery.
func (w *Watcher) deliveryFor(path string) string {
	rel, err := filepath.Rel(w.config.Dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	name := strings.Split(filepath.ToSlash(rel), "/")[0]
	if strings.HasPrefix(name, ".") {
		return ""
	}

	fi, err := os.Stat(filepath.Join(w.config.Dir, name))
	if err != nil || !fi.IsDir() {
		return ""
	}
	return name
}

// schedule arms (or re-arms) the settle timer for a delivery. Activity under
// a delivery pushes its check back until the tree goes quiet.
func (w *Watcher) schedule(ctx context.Context, delivery string, reports chan<- Report) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.checked[delivery] {
		return
	}
	if t, ok := w.timers[delivery]; ok {
		t.Reset(w.config.Settle)
		return
	}

	w.log.Info("Delivery detected, waiting for it to settle", "delivery", delivery)
	w.timers[delivery] = time.AfterFunc(w.config.Settle, func() {
		w.mu.Lock()
		if w.checked[delivery] {
			w.mu.Unlock()
			return
		}
		w.checked[delivery] = true
		delete(w.timers, delivery)
		w.wg.Add(1)
		w.mu.Unlock()

		go func() {
			defer w.wg.Done()
			if ctx.Err() != nil {
				return
			}
			r := w.run(ctx, delivery)
			select {
			case reports <- r:
			case <-ctx.Done():
			}
		}()
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
}

// checkDelivery runs the pipeline against one settled delivery.
func (w *Watcher) checkDelivery(ctx context.Context, delivery string) Report {
	w.log.Info("Delivery settled, checking", "delivery", delivery)

	b, path, err := batch.Run(w.log, batch.Config{
		Dir:        filepath.Join(w.config.Dir, delivery),
		PolicyPath: w.config.PolicyPath,
		Operator:   w.config.Operator,
	})
	if err != nil {
		w.log.Error("Automatic check failed", "delivery", delivery, "error", err)
		return Report{Delivery: delivery, Err: err}
	}

	w.log.Info("Automatic check complete", "delivery", delivery, "overall", b.Overall, "manifest", path)
	return Report{Delivery: delivery, ManifestPath: path, Overall: b.Overall}
}
