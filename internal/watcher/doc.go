// Package watcher reports changes under photo folders.
//
// Events come from fsnotify when the platform supports it and from a polling
// snapshot diff otherwise (network shares often never deliver inotify
// events). Either way they are filtered with the scanner's rules, so hidden
// files, excluded directories and foreign extensions never wake the indexer,
// and debounced into batches so a camera import of hundreds of files costs
// one index run.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, roots...) }()
//
//	for batch := range w.Events() {
//	    // re-index the roots touched by batch
//	}
package watcher
