/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: crash_store.go
Description: Crash and hang collection for crashprobe. Deduplicates findings by coverage
bitmap hash and writes them to the AFL crashes and hangs directories using AFL file
naming, so the output can be consumed by afl-tmin, afl-collect and friends.
*/

package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// CrashRecord describes a saved finding
type CrashRecord struct {
	Path   string
	Reason string
	Hash   string
	Status interfaces.ExecutionStatus
	Size   int
}

// CrashStore saves unique crashes and hangs
type CrashStore struct {
	crashesDir string
	hangsDir   string
	logger     *logrus.Logger

	mu      sync.Mutex
	seen    map[string]struct{}
	crashes int
	hangs   int
}

// NewCrashStore creates a store writing to the given directories
func NewCrashStore(crashesDir, hangsDir string, logger *logrus.Logger) *CrashStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CrashStore{
		crashesDir: crashesDir,
		hangsDir:   hangsDir,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// CrashFileName builds the AFL-style file name for a finding. id is the
// execution count at which it was found.
func CrashFileName(id int64, reason, hash string) string {
	name := fmt.Sprintf("id:%06d,sig:%s,src:000000,op:havoc,rep:1", id, reason)
	if len(hash) >= 8 {
		name += ",hash:" + hash[:8]
	}
	return name
}

// dedupKey identifies a finding. Without a bitmap there is nothing to tell
// two findings apart but the reason.
func dedupKey(result *interfaces.ExecutionResult) string {
	if result.BitmapHash != "" {
		return result.Status.String() + ":" + result.BitmapHash
	}
	return result.Status.String() + ":reason:" + result.Reason
}

// Save records the input of a crashing or hanging execution. It returns nil
// when the result is neither, or when an equivalent finding is already stored.
func (s *CrashStore) Save(data []byte, result *interfaces.ExecutionResult, id int64) (*CrashRecord, error) {
	var dir string
	switch result.Status {
	case interfaces.StatusCrash:
		dir = s.crashesDir
	case interfaces.StatusHang:
		dir = s.hangsDir
	default:
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(result)
	if _, dup := s.seen[key]; dup {
		return nil, nil
	}

	path := filepath.Join(dir, CrashFileName(id, result.Reason, result.BitmapHash))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", result.Status, err)
	}
	s.seen[key] = struct{}{}

	if result.Status == interfaces.StatusCrash {
		s.crashes++
	} else {
		s.hangs++
	}

	s.logger.WithFields(logrus.Fields{
		"reason": result.Reason,
		"hash":   result.BitmapHash,
		"size":   len(data),
		"file":   filepath.Base(path),
	}).Debugf("Saved %s", result.Status)

	return &CrashRecord{
		Path:   path,
		Reason: result.Reason,
		Hash:   result.BitmapHash,
		Status: result.Status,
		Size:   len(data),
	}, nil
}

// UniqueCrashes returns the number of distinct crashes saved
func (s *CrashStore) UniqueCrashes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crashes
}

// UniqueHangs returns the number of distinct hangs saved
func (s *CrashStore) UniqueHangs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hangs
}
