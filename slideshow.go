package main

import (
	"context"
	"image"
	"log"
	"time"
)

// Slideshow is the control loop. It is driven from a single goroutine and
// owns its LoopState outright; other goroutines only see published copies.
type Slideshow struct {
	cfg       Config
	fetcher   ContentFetcher
	composer  *SlideComposer
	monitor   *ConnectivityMonitor
	scheduler *RefreshScheduler
	sink      DisplaySink
	offline   *image.RGBA
	metrics   *Metrics
	status    *statusBoard
	presses   <-chan struct{}
	now       func() time.Time

	state LoopState
}

// Run shows the offline slide, then steps the loop until ctx is done.
func (s *Slideshow) Run(ctx context.Context) error {
	s.present(s.offline)
	log.Println("initial offline slide displayed")
	s.publishStatus()

	for {
		wait := s.Step(ctx)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Step runs one loop iteration and returns how long to sleep before the
// next one. A fetch inside Step blocks until it succeeds or runs out of
// retries; nothing interrupts it.
func (s *Slideshow) Step(ctx context.Context) time.Duration {
	now := s.now()
	st := &s.state

	switch tr := s.monitor.Sample(ctx, &st.Connectivity); tr {
	case WentOffline:
		log.Println("transition to OFFLINE")
		s.metrics.transition(tr)
		if st.Phase == Serving {
			s.goOffline()
		}
	case WentOnline:
		log.Println("transition to ONLINE")
		s.metrics.transition(tr)
	}
	s.metrics.setOnline(st.Connectivity.Online)

	pressed := s.drainPresses()

	if st.Phase == AwaitingOnline {
		if st.Connectivity.Online {
			s.enterServing(ctx, now)
		}
		if st.Phase == AwaitingOnline {
			s.publishStatus()
			return s.cfg.offlinePoll()
		}
	}

	if pressed {
		log.Println("button pressed, advancing slide")
		st.Rotation.AdvanceNow(now)
	}

	if s.scheduler.Due(&st.Window, now) {
		s.refresh(ctx, now)
	}

	if slide, index, ok := st.Rotation.Tick(now); ok {
		s.present(slide)
		s.metrics.setSlide(index)
		log.Printf("displayed slide %d", index)
	}

	s.publishStatus()
	return s.cfg.onlinePoll()
}

// enterServing performs the fetch that follows an ONLINE edge. Its result
// is committed without change detection because the fallback slide is on
// screen and any deck is better than that.
func (s *Slideshow) enterServing(ctx context.Context, now time.Time) {
	st := &s.state
	s.scheduler.MarkAttempt(&st.Window, now)

	images, err := s.fetcher.FetchAll(ctx, s.cfg.ImageURLs)
	if err != nil {
		log.Printf("initial fetch failed, staying on offline slide: %v", err)
		s.metrics.fetched(err)
		return
	}
	s.metrics.fetched(nil)

	st.Rotation.Replace(s.composeSet(images), now)
	st.Phase = Serving
	s.metrics.committed(Committed)
	log.Printf("serving %d slides", st.Rotation.Set.Len())
}

// refresh is one retry-until-success attempt within the current bucket.
func (s *Slideshow) refresh(ctx context.Context, now time.Time) {
	st := &s.state
	bucket := st.Window.Current
	log.Printf("attempting refresh for bucket %s", bucket)
	s.scheduler.MarkAttempt(&st.Window, now)

	images, err := s.fetcher.FetchAll(ctx, s.cfg.ImageURLs)
	if err != nil {
		log.Printf("refresh failed, will retry: %v", err)
		s.metrics.fetched(err)
		return
	}
	s.metrics.fetched(nil)
	s.scheduler.MarkProcessed(&st.Window, bucket)

	// Skip composing when the bytes are the same as what is on rotation.
	if st.Rotation.Set.SameContent(fingerprintsOf(images)) {
		log.Println("refresh unchanged, keeping current slides")
		s.metrics.committed(Unchanged)
		return
	}
	result := st.Rotation.CommitIfChanged(s.composeSet(images), now)
	s.metrics.committed(result)
	log.Printf("refresh %s", result)
}

func (s *Slideshow) goOffline() {
	s.state.Phase = AwaitingOnline
	s.present(s.offline)
	log.Println("offline slide displayed")
}

func (s *Slideshow) composeSet(images []DecodedImage) SlideSet {
	set := SlideSet{
		Slides:       make([]*image.RGBA, 0, len(images)),
		Fingerprints: make([]Fingerprint, 0, len(images)),
	}
	for _, img := range images {
		set.Slides = append(set.Slides, s.composer.Compose(img.Image))
		set.Fingerprints = append(set.Fingerprints, img.Fingerprint)
	}
	return set
}

func fingerprintsOf(images []DecodedImage) []Fingerprint {
	fps := make([]Fingerprint, len(images))
	for i, img := range images {
		fps[i] = img.Fingerprint
	}
	return fps
}

func (s *Slideshow) present(frame *image.RGBA) {
	if err := s.sink.Present(frame); err != nil {
		log.Printf("display update failed: %v", err)
	}
}

// drainPresses empties the button channel without blocking.
func (s *Slideshow) drainPresses() bool {
	pressed := false
	for {
		select {
		case <-s.presses:
			pressed = true
		default:
			return pressed
		}
	}
}

func (s *Slideshow) publishStatus() {
	if s.status == nil {
		return
	}
	st := &s.state
	snap := Status{
		Phase:           st.Phase.String(),
		Online:          st.Connectivity.Online,
		OnlineSuccesses: st.Connectivity.OnlineSuccesses,
		OfflineFailures: st.Connectivity.OfflineFailures,
		SlideCount:      st.Rotation.Set.Len(),
		NextIndex:       st.Rotation.Cursor.Index,
		NextAdvance:     st.Rotation.Cursor.Deadline,
		LastAttempt:     st.Window.LastAttempt,
	}
	if st.Window.HasProcessed {
		snap.LastBucket = st.Window.Processed.String()
	}
	for _, fp := range st.Rotation.Set.Fingerprints {
		snap.Fingerprints = append(snap.Fingerprints, fp.Short())
	}
	s.status.publish(snap)
}
