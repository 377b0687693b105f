// Package traffic keeps sliding windows of archive fetch outcomes and
// rate-limit denials. Health reporting reads the archive error rate from here.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained.
const maxAge = 5 * time.Minute

var defaultTracker Tracker

// RecordFetchSuccess records an archive fetch that returned data.
func RecordFetchSuccess() {
	defaultTracker.RecordFetchSuccess()
}

// RecordFetchError records an archive fetch that ended in a FetchError.
func RecordFetchError() {
	defaultTracker.RecordFetchError()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// ErrorRate returns (errorCount, totalCount) for fetches within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Degraded reports whether the archive error rate within window is at or
// above threshold, once at least minFetches fetches were seen.
func Degraded(window time.Duration, threshold float64, minFetches int) bool {
	return defaultTracker.Degraded(window, threshold, minFetches)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// RecordFetchSuccess records a successful fetch.
func (t *Tracker) RecordFetchSuccess() {
	t.record(&t.successTimes, time.Now())
}

// RecordFetchError records a failed fetch.
func (t *Tracker) RecordFetchError() {
	t.record(&t.errorTimes, time.Now())
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes, time.Now())
}

func (t *Tracker) record(slice *[]time.Time, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) within the window; denials are not fetches.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	errCount := countSince(t.errorTimes, cutoff)
	return errCount, errCount + countSince(t.successTimes, cutoff)
}

// DenialCount returns the number of denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, time.Now().Add(-window))
}

// Degraded implements the package-level Degraded on this tracker.
func (t *Tracker) Degraded(window time.Duration, threshold float64, minFetches int) bool {
	errs, total := t.ErrorRate(window)
	if total == 0 || total < minFetches {
		return false
	}
	return float64(errs)/float64(total) >= threshold
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
