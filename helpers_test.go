package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock(hour, min, sec int) *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, hour, min, sec, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Set(hour, min, sec int) {
	c.t = time.Date(2026, 10, 17, hour, min, sec, 0, time.UTC)
}

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// switchProber reports whatever up says; err, when set, wins.
type switchProber struct {
	up    bool
	err   error
	calls int
}

func (p *switchProber) Probe(ctx context.Context) (bool, error) {
	p.calls++
	if p.err != nil {
		return false, p.err
	}
	return p.up, nil
}

var errFetch = errors.New("upstream down")

// fakeFetcher returns one solid image per URL. Content picks each image's
// fingerprint seed; fail makes the whole batch fail.
type fakeFetcher struct {
	content []string
	fail    bool
	calls   int
}

func (f *fakeFetcher) FetchAll(ctx context.Context, urls []string) ([]DecodedImage, error) {
	f.calls++
	if f.fail {
		return nil, errFetch
	}
	images := make([]DecodedImage, len(urls))
	for i, url := range urls {
		seed := f.content[i]
		images[i] = DecodedImage{
			URL:         url,
			Image:       solidImage(20, 10, color.RGBA{uint8(len(seed) * 40), 0, 0, 255}),
			Fingerprint: sha256.Sum256([]byte(seed)),
		}
	}
	return images, nil
}

type recordingSink struct {
	width, height int
	frames        []*image.RGBA
}

func (s *recordingSink) Resolution() (int, int) { return s.width, s.height }

func (s *recordingSink) Present(frame *image.RGBA) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) last() *image.RGBA {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// requireNear compares colors allowing for filter rounding.
func requireNear(t *testing.T, want color.RGBA, got color.RGBA) {
	t.Helper()
	near := func(a, b uint8) bool {
		d := int(a) - int(b)
		return d >= -3 && d <= 3
	}
	require.Truef(t, near(want.R, got.R) && near(want.G, got.G) && near(want.B, got.B) && near(want.A, got.A),
		"color: got %v, want %v", got, want)
}
