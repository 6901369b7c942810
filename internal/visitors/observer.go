package visitors

import "time"

// Observer receives cache and lookup events. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheHit()
	CacheMiss()
	StaleServed()
	RefreshSucceeded(duration time.Duration, rows, keys int)
	RefreshFailed(duration time.Duration, err error)
	LookupCompleted(outcome Outcome)
}

type noopObserver struct{}

func (noopObserver) CacheHit() {}
func (noopObserver) CacheMiss() {}
func (noopObserver) StaleServed() {}
func (noopObserver) RefreshSucceeded(time.Duration, int, int) {}
func (noopObserver) RefreshFailed(time.Duration, error) {}
func (noopObserver) LookupCompleted(Outcome) {}
