package main

import (
	"fmt"
	"time"
)

// Phase is where the refresh state machine stands.
type Phase int

const (
	AwaitingOnline Phase = iota // fallback slide shown, no fetching
	Serving                     // deck committed and rotating
)

func (p Phase) String() string {
	if p == Serving {
		return "serving"
	}
	return "awaiting_online"
}

// Bucket identifies a refresh window of the wall clock: the hour and the
// minute divided by the bucket length.
type Bucket struct {
	Hour int
	Slot int
}

func (b Bucket) String() string {
	return fmt.Sprintf("%02d/%d", b.Hour, b.Slot)
}

// RefreshWindow remembers which bucket was last processed successfully
// and when the last attempt started.
type RefreshWindow struct {
	Current      Bucket
	Processed    Bucket
	HasProcessed bool
	LastAttempt  time.Time
}

// RefreshScheduler decides when a Serving loop should fetch again: at most
// one successful fetch per bucket, only once the wall clock is offset
// seconds into the minute, and no more often than every cooldown while
// earlier attempts keep failing.
type RefreshScheduler struct {
	bucketMinutes int
	offset        int
	cooldown      time.Duration
}

func newRefreshScheduler(bucketMinutes, offsetSeconds int, cooldown time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		bucketMinutes: max(bucketMinutes, 1),
		offset:        offsetSeconds,
		cooldown:      cooldown,
	}
}

func (r *RefreshScheduler) BucketOf(wall time.Time) Bucket {
	return Bucket{Hour: wall.Hour(), Slot: wall.Minute() / r.bucketMinutes}
}

// Due reports whether an attempt should start at now. It also records the
// bucket now falls into.
func (r *RefreshScheduler) Due(w *RefreshWindow, now time.Time) bool {
	w.Current = r.BucketOf(now)
	if now.Second() < r.offset {
		return false
	}
	if w.HasProcessed && w.Processed == w.Current {
		return false
	}
	return w.LastAttempt.IsZero() || now.Sub(w.LastAttempt) >= r.cooldown
}

// MarkAttempt starts the cooldown.
func (r *RefreshScheduler) MarkAttempt(w *RefreshWindow, now time.Time) {
	w.LastAttempt = now
}

// MarkProcessed closes bucket b. Only successful fetches call this, so a
// failed attempt is retried after the cooldown within the same bucket.
func (r *RefreshScheduler) MarkProcessed(w *RefreshWindow, b Bucket) {
	w.Processed = b
	w.HasProcessed = true
}

// LoopState is everything the main loop mutates between iterations.
type LoopState struct {
	Phase        Phase
	Connectivity ConnectivityState
	Window       RefreshWindow
	Rotation     SlideRotator
}
