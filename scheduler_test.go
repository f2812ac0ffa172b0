package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, min, sec int) time.Time {
	return time.Date(2026, 10, 17, hour, min, sec, 0, time.Local)
}

func TestBucketOf(t *testing.T) {
	s := newRefreshScheduler(5, 12, 10*time.Second)
	tests := []struct {
		wall time.Time
		want Bucket
	}{
		{at(0, 0, 0), Bucket{0, 0}},
		{at(9, 4, 59), Bucket{9, 0}},
		{at(9, 5, 0), Bucket{9, 1}},
		{at(23, 59, 59), Bucket{23, 11}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.BucketOf(tt.wall), tt.wall.Format(time.TimeOnly))
	}
	assert.Equal(t, "09/1", Bucket{9, 1}.String())

	// A zero bucket length behaves like one-minute buckets.
	one := newRefreshScheduler(0, 0, 0)
	assert.Equal(t, Bucket{9, 37}, one.BucketOf(at(9, 37, 0)))
}

func TestDue(t *testing.T) {
	s := newRefreshScheduler(5, 12, 10*time.Second)

	tests := []struct {
		name   string
		window RefreshWindow
		now    time.Time
		want   bool
	}{
		{"fresh window after offset", RefreshWindow{}, at(10, 0, 12), true},
		{"before offset", RefreshWindow{}, at(10, 0, 11), false},
		{"bucket processed", RefreshWindow{Processed: Bucket{10, 0}, HasProcessed: true}, at(10, 4, 30), false},
		{"next bucket", RefreshWindow{Processed: Bucket{10, 0}, HasProcessed: true}, at(10, 5, 30), true},
		{"same slot other hour", RefreshWindow{Processed: Bucket{9, 0}, HasProcessed: true}, at(10, 0, 30), true},
		{"cooling down", RefreshWindow{LastAttempt: at(10, 0, 12)}, at(10, 0, 21), false},
		{"cooldown over", RefreshWindow{LastAttempt: at(10, 0, 12)}, at(10, 0, 22), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.window
			assert.Equal(t, tt.want, s.Due(&w, tt.now))
			assert.Equal(t, s.BucketOf(tt.now), w.Current)
		})
	}
}

func TestOnlySuccessClosesBucket(t *testing.T) {
	s := newRefreshScheduler(5, 12, 10*time.Second)
	var w RefreshWindow

	now := at(10, 0, 15)
	assert.True(t, s.Due(&w, now))
	s.MarkAttempt(&w, now)
	assert.False(t, w.HasProcessed)

	now = now.Add(10 * time.Second)
	assert.True(t, s.Due(&w, now), "failed attempt retried in the same bucket")
	s.MarkAttempt(&w, now)
	s.MarkProcessed(&w, w.Current)

	assert.False(t, s.Due(&w, now.Add(time.Minute)))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting_online", AwaitingOnline.String())
	assert.Equal(t, "serving", Serving.String())
}
