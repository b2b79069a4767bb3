package booking

import "time"

// Clock supplies the current time. Injected so policy and validation logic
// can be tested at fixed instants.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the production clock.
func SystemClock() Clock { return systemClock{} }
