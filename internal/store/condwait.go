package store

import (
	"sync"
	"time"
)

// timedWait blocks on cond (already held under its Locker) until either
// the condition is broadcast or deadline passes, returning true if the
// deadline was the reason for waking. sync.Cond has no built-in timed
// wait, so a one-shot timer broadcasts the same cond on expiry; the
// caller re-checks its predicate after every return, as with any
// sync.Cond usage.
func timedWait(cond *sync.Cond, deadline time.Time) (timedOut bool) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return true
	}
	timer := time.AfterFunc(remaining, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
	return !time.Now().Before(deadline)
}
