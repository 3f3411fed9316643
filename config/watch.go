package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watch calls onChange with the reloaded config every time path is written.
// It runs until ctx is cancelled. A reload that fails is logged and skipped,
// leaving the previous config in place.
func Watch(ctx context.Context, path string, onChange func(*Config), logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return errors.Wrapf(err, "failed to watch %s", path)
	}

	logger.Info("[config] watching for changes", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// editors often save by rename, which shows up as a create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error("[config] reload failed, keeping previous config",
					zap.String("path", path), zap.Error(err))
				continue
			}

			logger.Info("[config] reloaded", zap.String("path", path))
			onChange(cfg)

			// the inode may have been replaced.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("[config] watcher error", zap.Error(err))
		}
	}
}
