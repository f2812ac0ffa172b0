package main

import (
	"image"
	"slices"
	"time"
)

// SlideSet is a committed deck: one composed slide and one fingerprint per
// resource, in resource order. A set is either empty or complete.
type SlideSet struct {
	Slides       []*image.RGBA
	Fingerprints []Fingerprint
}

func (s SlideSet) Len() int { return len(s.Slides) }

func (s SlideSet) Empty() bool { return len(s.Slides) == 0 }

// SameContent reports whether fps matches the committed fingerprints
// position by position. An empty set matches nothing.
func (s SlideSet) SameContent(fps []Fingerprint) bool {
	return !s.Empty() && slices.Equal(s.Fingerprints, fps)
}

// RotationCursor is the next slide to show and when to show it.
type RotationCursor struct {
	Index    int
	Deadline time.Time
}

// CommitResult tells the caller whether a refresh replaced the deck.
type CommitResult int

const (
	Unchanged CommitResult = iota
	Committed
)

func (r CommitResult) String() string {
	if r == Committed {
		return "committed"
	}
	return "unchanged"
}

// SlideRotator cycles through the committed SlideSet on a fixed cadence.
type SlideRotator struct {
	Set      SlideSet
	Cursor   RotationCursor
	interval time.Duration
}

func newSlideRotator(interval time.Duration) SlideRotator {
	return SlideRotator{interval: interval}
}

// Replace installs set unconditionally and schedules its first slide now.
func (r *SlideRotator) Replace(set SlideSet, now time.Time) {
	r.Set = set
	r.Cursor = RotationCursor{Index: 0, Deadline: now}
}

// CommitIfChanged installs set only when its fingerprints differ from the
// committed ones. An unchanged set leaves the cursor and deadline alone.
func (r *SlideRotator) CommitIfChanged(set SlideSet, now time.Time) CommitResult {
	if r.Set.SameContent(set.Fingerprints) {
		return Unchanged
	}
	r.Replace(set, now)
	return Committed
}

// AdvanceNow makes the next Tick show the following slide immediately.
func (r *SlideRotator) AdvanceNow(now time.Time) {
	if now.Before(r.Cursor.Deadline) {
		r.Cursor.Deadline = now
	}
}

// Tick returns the slide due at now and moves the cursor on. The next
// deadline is measured from now, so a long pause does not cause a burst
// of catch-up advances.
func (r *SlideRotator) Tick(now time.Time) (slide *image.RGBA, index int, ok bool) {
	if r.Set.Empty() || now.Before(r.Cursor.Deadline) {
		return nil, 0, false
	}
	index = r.Cursor.Index % r.Set.Len()
	slide = r.Set.Slides[index]
	r.Cursor.Index = (index + 1) % r.Set.Len()
	r.Cursor.Deadline = now.Add(r.interval)
	return slide, index, true
}
