package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v4"
	"periph.io/x/host/v3"
)

// DisplaySink is where finished frames go. Present is fire-and-forget from
// the loop's point of view: errors are logged and nothing else.
type DisplaySink interface {
	// Resolution is queried once at startup to size every composition.
	Resolution() (width, height int)

	// Present pushes one full frame to the device.
	Present(frame *image.RGBA) error
}

type displayDevice interface {
	DisplaySink
	io.Closer
}

func openDisplay(cfg DisplayConfig) (displayDevice, error) {
	switch cfg.Driver {
	case DRIVER_WAVESHARE_2IN13V4:
		return openEpaper(cfg)
	case DRIVER_PNG:
		return &pngSink{width: cfg.Width, height: cfg.Height, path: cfg.OutputPath}, nil
	default:
		return nil, fmt.Errorf("unknown display driver %q", cfg.Driver)
	}
}

//---------------- E-paper ----------------

// epaperPanel is the part of the waveshare driver the sink uses.
type epaperPanel interface {
	Init() error
	Clear(c color.Color) error
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Sleep() error
	Halt() error
	Bounds() image.Rectangle
}

// epaperSink drives a Waveshare 2.13" V4 HAT. The panel is native portrait;
// with landscape set, frames are composed sideways and rotated on the way
// out. The panel is put to sleep after every refresh and woken on demand.
type epaperSink struct {
	port      spi.PortCloser
	panel     epaperPanel
	landscape bool
	sleeping  bool
}

func openEpaper(cfg DisplayConfig) (*epaperSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epaper: host init: %w", err)
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("epaper: open spi %q: %w", cfg.SPIPort, err)
	}
	opts := waveshare2in13v4.EPD2in13v4
	dev, err := waveshare2in13v4.NewHat(port, &opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("epaper: new hat: %w", err)
	}
	s := &epaperSink{port: port, panel: dev, landscape: cfg.Landscape}
	if err := s.panel.Init(); err != nil {
		s.Close()
		return nil, fmt.Errorf("epaper: init: %w", err)
	}
	if err := s.panel.Clear(color.White); err != nil {
		s.Close()
		return nil, fmt.Errorf("epaper: clear: %w", err)
	}
	return s, nil
}

func (s *epaperSink) Resolution() (int, int) {
	b := s.panel.Bounds()
	if s.landscape {
		return b.Dy(), b.Dx()
	}
	return b.Dx(), b.Dy()
}

func (s *epaperSink) Present(frame *image.RGBA) error {
	if s.sleeping {
		if err := s.panel.Init(); err != nil {
			return fmt.Errorf("epaper: wake: %w", err)
		}
		s.sleeping = false
	}

	var src image.Image = frame
	if s.landscape {
		src = landscapeToPortrait(frame)
	}
	bounds := s.panel.Bounds()
	img := image1bit.NewVerticalLSB(bounds)
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	if err := s.panel.Draw(bounds, img, image.Point{}); err != nil {
		return fmt.Errorf("epaper: draw: %w", err)
	}
	if err := s.panel.Sleep(); err != nil {
		return fmt.Errorf("epaper: sleep: %w", err)
	}
	s.sleeping = true
	return nil
}

func (s *epaperSink) Close() error {
	err := s.panel.Halt()
	if s.port != nil {
		if cerr := s.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// landscapeToPortrait rotates a frame 90 degrees clockwise.
func landscapeToPortrait(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetRGBA(b.Dy()-1-y, x, src.RGBAAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

//---------------- PNG ----------------

// pngSink writes every frame to a file, for running without the panel.
type pngSink struct {
	width  int
	height int
	path   string
}

func (s *pngSink) Resolution() (int, int) { return s.width, s.height }

func (s *pngSink) Present(frame *image.RGBA) error {
	return saveFrameToPng(frame, s.path)
}

func (s *pngSink) Close() error { return nil }

//---------------- Preview ----------------

// previewSink forwards frames to the real device and keeps a copy of the
// last one for the HTTP preview.
type previewSink struct {
	next    DisplaySink
	metrics *Metrics

	mu   sync.RWMutex
	last *image.RGBA
}

func newPreviewSink(next DisplaySink, metrics *Metrics) *previewSink {
	return &previewSink{next: next, metrics: metrics}
}

func (p *previewSink) Resolution() (int, int) { return p.next.Resolution() }

func (p *previewSink) Present(frame *image.RGBA) error {
	p.mu.Lock()
	p.last = cloneFrame(frame)
	p.mu.Unlock()

	err := p.next.Present(frame)
	p.metrics.presented(err)
	return err
}

// Frame returns a copy of the last presented frame, or nil before the first.
func (p *previewSink) Frame() *image.RGBA {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneFrame(p.last)
}
