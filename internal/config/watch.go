// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// DefaultWatchDebounce collapses the burst of events editors emit on save.
const DefaultWatchDebounce = 200 * time.Millisecond

// ReloadFunc receives the freshly loaded configuration, or the error that
// prevented loading it.
type ReloadFunc func(cfg *Config, err error)

// Watch reloads path whenever it changes and passes the result to onReload.
// It blocks until ctx is done. The parent directory is watched so that
// editors replacing the file by rename are still seen.
func Watch(ctx context.Context, path string, logger *zap.Logger, onReload ReloadFunc) error {
	return watch(ctx, path, DefaultWatchDebounce, logger, onReload)
}

func watch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger, onReload ReloadFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := LoadFromPath(path)
		if err != nil {
			logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		} else {
			logger.Info("config reloaded", zap.String("path", path))
		}
		onReload(cfg, err)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(debounce, reload)
			} else {
				timer.Reset(debounce)
			}
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", zap.Error(err))
		}
	}
}
