package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "gridcal/internal/log"
)

// selfWriteWindow is how long after one of our own saves a filesystem
// event on that document is ignored.
const selfWriteWindow = 2 * time.Second

// Watch reloads calendar documents edited outside this process. It blocks
// until ctx is cancelled; reloads surface to subscribers as
// ChangeReloaded notifications.
func (s *Store) Watch(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: ensure calendar dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("store: watch %s: %w", s.dir, err)
	}
	appLog.Info("watching calendar directory", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			calID, ok := calendarIDFromPath(ev.Name)
			if !ok {
				continue
			}
			if s.recentlySaved(calID) {
				continue
			}
			appLog.Info("external calendar change", "calendar", calID, "op", ev.Op.String())
			if err := s.Load(calID); err != nil {
				// Keep watching; a half-written file often settles on the
				// next event.
				appLog.Error("reload after external change failed", err, "calendar", calID)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if werr != nil && !errors.Is(werr, fsnotify.ErrEventOverflow) {
				appLog.Error("calendar watcher error", werr)
			}
		}
	}
}

func calendarIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, docExtension) {
		return "", false
	}
	calID := strings.TrimSuffix(name, docExtension)
	if !calendarIDPattern.MatchString(calID) {
		return "", false
	}
	return calID, true
}

func (s *Store) recentlySaved(calendarID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastSaved[calendarID]
	return ok && time.Since(at) < selfWriteWindow
}
