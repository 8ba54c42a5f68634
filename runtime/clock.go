package runtime

import (
	"time"

	"presence-lab/contract"
)

// systemClock is the production Clock, a thin veneer over package time.
type systemClock struct{}

func NewSystemClock() contract.Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) contract.Timer {
	return time.AfterFunc(d, fn)
}
