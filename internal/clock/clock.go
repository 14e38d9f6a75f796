package clock

import "time"

// Clock abstracts wall-clock time so stores and services can be tested
// against a controllable time source.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
