package store

import (
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "gridcal/internal/log"
)

// StartAutosave schedules SaveDirty on a cron expression (standard
// five-field syntax, e.g. "*/5 * * * *"). The returned stop function
// halts the scheduler and flushes any remaining dirty calendars.
func (s *Store) StartAutosave(spec string) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.SaveDirty(); err != nil {
			appLog.Error("autosave cycle failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("store: autosave schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("autosave scheduled", "cron", spec)

	return func() {
		<-c.Stop().Done()
		if err := s.SaveDirty(); err != nil {
			appLog.Error("final autosave flush failed", err)
		}
	}, nil
}
