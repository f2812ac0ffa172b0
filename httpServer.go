package main

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const indexHTML = `<!doctype html>
<html><head><title>epaper slideshow</title><meta http-equiv="refresh" content="10"></head>
<body style="font-family:monospace">
<img src="/frame" style="border:1px solid #888;image-rendering:pixelated" width="500">
<pre id="s"></pre>
<script>fetch('/status').then(r=>r.json()).then(j=>{document.getElementById('s').textContent=JSON.stringify(j,null,2)})</script>
</body></html>`

// Status is the loop state as seen from outside the loop.
type Status struct {
	Phase           string    `json:"phase"`
	Online          bool      `json:"online"`
	OnlineSuccesses int       `json:"online_successes"`
	OfflineFailures int       `json:"offline_failures"`
	SlideCount      int       `json:"slide_count"`
	NextIndex       int       `json:"next_index"`
	NextAdvance     time.Time `json:"next_advance"`
	Fingerprints    []string  `json:"fingerprints"`
	LastAttempt     time.Time `json:"last_attempt"`
	LastBucket      string    `json:"last_bucket,omitempty"`
}

// statusBoard hands the latest Status from the loop to HTTP handlers.
type statusBoard struct {
	mu   sync.RWMutex
	snap Status
}

func (b *statusBoard) publish(s Status) {
	b.mu.Lock()
	b.snap = s
	b.mu.Unlock()
}

func (b *statusBoard) get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

func newHTTPServer(preview *previewSink, status *statusBoard, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(indexHTML)
	})

	app.Get("/frame", func(c *fiber.Ctx) error {
		frame := preview.Frame()
		if frame == nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("No frame available")
		}
		data, err := encodeFramePNG(frame)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode image")
		}
		c.Set(fiber.HeaderContentType, "image/png")
		c.Set(fiber.HeaderContentLength, strconv.Itoa(len(data)))
		return c.Send(data)
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(status.get())
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return app
}
