package model

import (
	"errors"
	"fmt"
	"time"
)

// Bounds for the auto-refresh interval offered to operators.
const (
	MinInterval     = 1 * time.Second
	MaxInterval     = 5 * time.Second
	DefaultInterval = 2 * time.Second
)

// ErrIntervalOutOfRange is returned for refresh intervals outside [MinInterval, MaxInterval].
var ErrIntervalOutOfRange = errors.New("refresh interval out of range")

// Settings are the operator controls read at the start of every cycle.
type Settings struct {
	Environment Environment
	AutoRefresh bool
	Interval    time.Duration
}

// DefaultSettings mirrors the initial state of the operator controls.
func DefaultSettings() Settings {
	return Settings{
		Environment: Urban,
		AutoRefresh: false,
		Interval:    DefaultInterval,
	}
}

// Validate checks the environment label and the interval bounds.
func (s Settings) Validate() error {
	if _, err := ParseEnvironment(string(s.Environment)); err != nil {
		return err
	}
	if s.Interval < MinInterval || s.Interval > MaxInterval {
		return fmt.Errorf("%s not in [%s, %s]: %w", s.Interval, MinInterval, MaxInterval, ErrIntervalOutOfRange)
	}
	return nil
}

// IntervalSeconds returns the interval as whole seconds.
func (s Settings) IntervalSeconds() int {
	return int(s.Interval / time.Second)
}
