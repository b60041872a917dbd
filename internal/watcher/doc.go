// Package watcher reports changes below a folder so an index can follow it.
//
// fsnotify is used when available, with a polling scanner as the fallback.
// Changes are debounced per path into batches, and paths that folder
// ingestion would skip (hidden entries, exclude patterns) never surface.
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, root)
//	for batch := range w.Events() {
//	    h.ApplyEvents(ctx, root, batch)
//	}
package watcher
