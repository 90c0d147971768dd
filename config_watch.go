package planets

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file whenever it changes on disk and publishes the
// hot-reloadable part of it. Arena sizing is read once at startup and is not
// affected by reloads.
type Watcher struct {
	path    string
	logger  Logger
	fs      *fsnotify.Watcher
	updates chan Tunables

	wg   sync.WaitGroup
	once sync.Once
}

func NewWatcher(path string, logger Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	// Editors usually replace the file, so the directory is watched and
	// events are filtered by name.
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:    abs,
		logger:  LoggerOrNop(logger),
		fs:      fs,
		updates: make(chan Tunables, 1),
	}, nil
}

// Updates yields the latest successfully parsed tunables. Only the most
// recent value is kept.
func (w *Watcher) Updates() <-chan Tunables {
	return w.updates
}

func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.reload()
				}
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.logger.Warnf("config watcher: %v", err)
			}
		}
	}()
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warnf("ignoring config change: %v", err)
		return
	}
	t := cfg.Tunables()
	w.logger.Infof("config reloaded: max_patch_level=%d level1_distance=%g desired_fps=%d",
		t.MaxPatchLevel, t.Level1Distance, t.DesiredFPS)

	// Replace any value the frame loop has not picked up yet.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- t
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
