package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// WatchService reports changes to the workbook file on disk
type WatchService struct {
	path     string
	debounce time.Duration
	onChange func()
}

// NewWatchService calls onChange at most once per debounce window after
// path is written, created or renamed
func NewWatchService(path string, onChange func()) *WatchService {
	return &WatchService{path: path, debounce: 2 * time.Second, onChange: onChange}
}

// Run watches until ctx is done. The parent directory is watched since
// spreadsheet programs save by replacing the file.
func (w *WatchService) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	zaplogger.Info("watching workbook", zaplogger.Fields{"path": abs})

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				zaplogger.Info("workbook changed on disk", zaplogger.Fields{"path": abs})
				w.onChange()
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zaplogger.Warn("workbook watcher error", zaplogger.Fields{"error": err.Error()})
		}
	}
}
