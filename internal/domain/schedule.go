package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for schedules that would never re-arm.
var ErrInvalidPeriod = errors.New("period must be greater than zero")

// SourceJobConfig declares when a source first runs and how long to wait
// after each completed run before the next one.
type SourceJobConfig struct {
	InitialDelay time.Duration
	Period       time.Duration
}

// Validate checks the schedule is usable by the scheduler.
func (c SourceJobConfig) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidPeriod, c.Period)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay must not be negative: got %s", c.InitialDelay)
	}
	return nil
}
