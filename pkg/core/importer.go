/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: importer.go
Description: Live seed import for crashprobe. Watches the seed directory with fsnotify and
hands files created or rewritten during a session to the engine.
*/

package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/sirupsen/logrus"
)

// SeedImporter watches a directory for new seed files
type SeedImporter struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *logrus.Logger

	mu   sync.Mutex
	seen map[string]string // path -> hash of the last imported content
}

// NewSeedImporter starts watching dir. Files already present are marked as
// seen so they are not imported twice. A file is imported again whenever its
// content changes, so a seed caught half written is picked up once complete.
func NewSeedImporter(dir string, logger *logrus.Logger) (*SeedImporter, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	si := &SeedImporter{
		dir:     dir,
		watcher: watcher,
		logger:  logger,
		seen:    make(map[string]string),
	}
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if data, err := os.ReadFile(path); err == nil {
				si.seen[path] = coverage.Hash(data)
			}
		}
	}
	return si, nil
}

// Run delivers imported seeds to onSeed until ctx is done
func (si *SeedImporter) Run(ctx context.Context, onSeed func(data []byte, name string)) error {
	defer si.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-si.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			si.handle(event.Name, onSeed)
		case err, ok := <-si.watcher.Errors:
			if !ok {
				return nil
			}
			si.logger.Warnf("Seed watcher error: %v", err)
		}
	}
}

func (si *SeedImporter) handle(path string, onSeed func(data []byte, name string)) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return
	}

	sum := coverage.Hash(data)
	si.mu.Lock()
	dup := si.seen[path] == sum
	si.seen[path] = sum
	si.mu.Unlock()
	if dup {
		return
	}

	si.logger.WithField("file", filepath.Base(path)).Info("Imported seed")
	onSeed(data, filepath.Base(path))
}
