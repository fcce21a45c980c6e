package discovery

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"brandwise/internal/logging"
)

// Watcher invalidates the resolver's memoized context when a project's
// discovery inputs change on disk.
type Watcher struct {
	resolver *Resolver
	fs       *fsnotify.Watcher
	done     chan struct{}
}

// Watch starts watching the discovery inputs under the project root.
// Close the watcher to stop.
func Watch(resolver *Resolver, projectRoot string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{resolver: resolver, fs: fs, done: make(chan struct{})}

	// Watch the directories, not the files: editors replace files on save
	// and a file watch dies with the inode.
	dirs := []string{
		filepath.Join(projectRoot, ".agentic"),
		projectRoot,
	}
	for _, d := range dirs {
		if err := fs.Add(d); err != nil {
			logging.DiscoveryDebug("cannot watch %s: %v", d, err)
		}
	}

	interesting := map[string]bool{
		"config.json":         true,
		"package.json":        true,
		"brand-pack.ref.json": true,
		"brand-pack.json":     true,
	}

	go func() {
		for {
			select {
			case <-w.done:
				return
			case ev, ok := <-fs.Events:
				if !ok {
					return
				}
				if interesting[filepath.Base(ev.Name)] {
					logging.Discovery("discovery input changed: %s, invalidating %s", ev.Name, projectRoot)
					resolver.Invalidate(projectRoot)
				}
			case err, ok := <-fs.Errors:
				if !ok {
					return
				}
				logging.DiscoveryDebug("watch error: %v", err)
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
