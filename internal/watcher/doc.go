// Package watcher turns changes under a local object store root into bucket
// change notifications on the queue.
//
// DirWatcher watches the root with fsnotify and falls back to polling where
// fsnotify cannot be used (network mounts, some container volumes). Its
// events are debounced so an editor's write-rename-chmod burst becomes one
// change. BucketWatcher maps each settled change to an ObjectCreated:Put or
// ObjectRemoved:Delete record and publishes it, so the filesystem store
// behaves like a bucket with event notifications enabled.
//
// Usage:
//
//	w := watcher.NewBucketWatcher(store, q, watcher.DefaultOptions())
//	return w.Run(ctx, store.Root)
package watcher
