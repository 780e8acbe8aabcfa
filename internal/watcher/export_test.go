package watcher

import "context"

// SetRunFunc replaces the delivery check, so tests observe scheduling without
// running the full pipeline.
func (w *Watcher) SetRunFunc(f func(ctx context.Context, delivery string) Report) {
	w.run = f
}
