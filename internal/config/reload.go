package config

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Reloadable watches the config file and atomically swaps in new
// configurations without dropping the running process.
type Reloadable struct {
	path     string
	current  atomic.Value // *Config
	mu       sync.RWMutex
	watchers []func(old, next *Config)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
}

func NewReloadable(path string) (*Reloadable, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}

	r := &Reloadable{
		path:    path,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}
	r.current.Store(cfg)
	go r.watchLoop()
	return r, nil
}

func (r *Reloadable) Get() *Config {
	return r.current.Load().(*Config)
}

// Watch registers a callback invoked with old and new config after a
// successful reload.
func (r *Reloadable) Watch(fn func(old, next *Config)) {
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

// Reload forces a reload from disk. Invalid files leave the current
// config in place.
func (r *Reloadable) Reload() error {
	next, err := Load(r.path)
	if err != nil {
		return err
	}
	old := r.Get()
	r.current.Store(next)

	r.mu.RLock()
	watchers := append([]func(old, next *Config){}, r.watchers...)
	r.mu.RUnlock()
	for _, fn := range watchers {
		go fn(old, next)
	}
	return nil
}

func (r *Reloadable) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := r.Reload(); err != nil {
					log.Printf("config reload failed, keeping previous: %v", err)
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watcher error: %v", err)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reloadable) Close() error {
	close(r.stopCh)
	return r.watcher.Close()
}
