package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	DEFAULT_SLIDE_SECONDS          = 30
	DEFAULT_MAX_RETRIES            = 3
	DEFAULT_TIMEOUT_SECONDS        = 10
	DEFAULT_RETRY_BACKOFF_SECONDS  = 1
	DEFAULT_OFFLINE_THRESHOLD      = 3
	DEFAULT_ONLINE_THRESHOLD       = 1
	DEFAULT_WIFI_INTERFACE         = "wlan0"
	DEFAULT_REFRESH_BUCKET_MINUTES = 5
	DEFAULT_REFRESH_OFFSET_SECONDS = 12
	DEFAULT_REFRESH_RETRY_SECONDS  = 10
	DEFAULT_ONLINE_POLL_SECONDS    = 0.1
	DEFAULT_OFFLINE_POLL_SECONDS   = 5
	DEFAULT_MAX_IMAGE_BYTES        = 20 << 20

	DRIVER_WAVESHARE_2IN13V4 = "waveshare2in13v4"
	DRIVER_PNG               = "png"
)

//---------------- Config ----------------

// DisplayConfig selects and sizes the output device.
type DisplayConfig struct {
	Driver     string `json:"driver" yaml:"driver"`
	SPIPort    string `json:"spi_port,omitempty" yaml:"spi_port,omitempty"`
	Landscape  bool   `json:"landscape,omitempty" yaml:"landscape,omitempty"`
	Width      int    `json:"width,omitempty" yaml:"width,omitempty"`   // png driver only
	Height     int    `json:"height,omitempty" yaml:"height,omitempty"` // png driver only
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// Config represents the overall config file. Every field has a compiled-in
// default, so the file only needs to name what differs.
type Config struct {
	ImageURLs   []string `json:"image_urls" yaml:"image_urls"`
	LogoPath    string   `json:"logo_path" yaml:"logo_path"`
	OfflinePath string   `json:"offline_path" yaml:"offline_path"`

	SlideSeconds        float64 `json:"slide_seconds" yaml:"slide_seconds"`
	MaxRetries          int     `json:"max_retries" yaml:"max_retries"`
	TimeoutSeconds      float64 `json:"timeout_seconds" yaml:"timeout_seconds"`
	RetryBackoffSeconds float64 `json:"retry_backoff_seconds" yaml:"retry_backoff_seconds"`
	MaxImageBytes       int64   `json:"max_image_bytes" yaml:"max_image_bytes"`

	OfflineThreshold int    `json:"offline_threshold" yaml:"offline_threshold"`
	OnlineThreshold  int    `json:"online_threshold" yaml:"online_threshold"`
	WifiInterface    string `json:"wifi_interface" yaml:"wifi_interface"`
	PingHost         string `json:"ping_host,omitempty" yaml:"ping_host,omitempty"`

	RefreshBucketMinutes int     `json:"refresh_bucket_minutes" yaml:"refresh_bucket_minutes"`
	RefreshOffsetSeconds int     `json:"refresh_offset_seconds" yaml:"refresh_offset_seconds"`
	RefreshRetrySeconds  float64 `json:"refresh_retry_seconds" yaml:"refresh_retry_seconds"`

	OnlinePollSeconds  float64 `json:"online_poll_seconds" yaml:"online_poll_seconds"`
	OfflinePollSeconds float64 `json:"offline_poll_seconds" yaml:"offline_poll_seconds"`

	OfflineBadge bool          `json:"offline_badge" yaml:"offline_badge"`
	ButtonDevice string        `json:"button_device,omitempty" yaml:"button_device,omitempty"`
	HTTPListen   string        `json:"http_listen,omitempty" yaml:"http_listen,omitempty"`
	Display      DisplayConfig `json:"display" yaml:"display"`
}

func defaultConfig() Config {
	return Config{
		ImageURLs: []string{
			"https://sisosig.info/temp/massdot.jpg",
			"https://sisosig.info/temp/massdot_graph.jpg",
		},
		LogoPath:             "sisosig.png",
		OfflinePath:          "qr-code.png",
		SlideSeconds:         DEFAULT_SLIDE_SECONDS,
		MaxRetries:           DEFAULT_MAX_RETRIES,
		TimeoutSeconds:       DEFAULT_TIMEOUT_SECONDS,
		RetryBackoffSeconds:  DEFAULT_RETRY_BACKOFF_SECONDS,
		MaxImageBytes:        DEFAULT_MAX_IMAGE_BYTES,
		OfflineThreshold:     DEFAULT_OFFLINE_THRESHOLD,
		OnlineThreshold:      DEFAULT_ONLINE_THRESHOLD,
		WifiInterface:        DEFAULT_WIFI_INTERFACE,
		RefreshBucketMinutes: DEFAULT_REFRESH_BUCKET_MINUTES,
		RefreshOffsetSeconds: DEFAULT_REFRESH_OFFSET_SECONDS,
		RefreshRetrySeconds:  DEFAULT_REFRESH_RETRY_SECONDS,
		OnlinePollSeconds:    DEFAULT_ONLINE_POLL_SECONDS,
		OfflinePollSeconds:   DEFAULT_OFFLINE_POLL_SECONDS,
		Display: DisplayConfig{
			Driver:     DRIVER_WAVESHARE_2IN13V4,
			Landscape:  true,
			Width:      250,
			Height:     122,
			OutputPath: "/tmp/epaper_slideshow.png",
		},
	}
}

func (c Config) validate() error {
	switch {
	case len(c.ImageURLs) == 0:
		return errors.New("config: image_urls is empty")
	case c.LogoPath == "" || c.OfflinePath == "":
		return errors.New("config: logo_path and offline_path are required")
	case c.SlideSeconds <= 0:
		return fmt.Errorf("config: slide_seconds must be positive, got %v", c.SlideSeconds)
	case c.MaxRetries < 1:
		return fmt.Errorf("config: max_retries must be at least 1, got %d", c.MaxRetries)
	case c.TimeoutSeconds <= 0:
		return fmt.Errorf("config: timeout_seconds must be positive, got %v", c.TimeoutSeconds)
	case c.RetryBackoffSeconds < 0:
		return fmt.Errorf("config: retry_backoff_seconds is negative: %v", c.RetryBackoffSeconds)
	case c.OfflineThreshold < 1 || c.OnlineThreshold < 1:
		return errors.New("config: online_threshold and offline_threshold must be at least 1")
	case c.WifiInterface == "":
		return errors.New("config: wifi_interface is required")
	case c.RefreshBucketMinutes < 1 || c.RefreshBucketMinutes > 60:
		return fmt.Errorf("config: refresh_bucket_minutes out of range: %d", c.RefreshBucketMinutes)
	case c.RefreshOffsetSeconds < 0 || c.RefreshOffsetSeconds > 59:
		return fmt.Errorf("config: refresh_offset_seconds out of range: %d", c.RefreshOffsetSeconds)
	case c.RefreshRetrySeconds <= 0:
		return fmt.Errorf("config: refresh_retry_seconds must be positive, got %v", c.RefreshRetrySeconds)
	case c.OnlinePollSeconds <= 0 || c.OfflinePollSeconds <= 0:
		return errors.New("config: poll intervals must be positive")
	}
	switch c.Display.Driver {
	case DRIVER_WAVESHARE_2IN13V4:
	case DRIVER_PNG:
		if c.Display.Width <= 0 || c.Display.Height <= 0 {
			return fmt.Errorf("config: png display needs a size, got %dx%d", c.Display.Width, c.Display.Height)
		}
	default:
		return fmt.Errorf("config: unknown display driver %q", c.Display.Driver)
	}
	return nil
}

func (c Config) slideInterval() time.Duration { return seconds(c.SlideSeconds) }
func (c Config) onlinePoll() time.Duration    { return seconds(c.OnlinePollSeconds) }
func (c Config) offlinePoll() time.Duration   { return seconds(c.OfflinePollSeconds) }

func (c Config) retryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: c.MaxRetries,
		Backoff:  seconds(c.RetryBackoffSeconds),
		Timeout:  seconds(c.TimeoutSeconds),
	}
}

//---------------- Main ----------------

func main() {
	configPath := flag.String("config", "", "optional JSON or YAML config file")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if err := cfg.validate(); err != nil {
		log.Fatal(err)
	}

	sink, err := openDisplay(cfg.Display)
	if err != nil {
		log.Fatalf("Failed to open display: %v", err)
	}
	defer sink.Close()

	width, height := sink.Resolution()
	log.Printf("display resolution: %dx%d", width, height)

	// Without both assets there is no fallback guarantee, so refuse to start.
	logo, err := loadImage(cfg.LogoPath)
	if err != nil {
		log.Fatalf("Failed to load logo %s: %v", cfg.LogoPath, err)
	}
	log.Println("logo loaded")
	offlineSrc, err := loadImage(cfg.OfflinePath)
	if err != nil {
		log.Fatalf("Failed to load offline slide %s: %v", cfg.OfflinePath, err)
	}
	offline := prepareOfflineSlide(offlineSrc, width, height, cfg.OfflineBadge)
	log.Println("offline slide prepared")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := newMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var prober Prober = interfaceProber{name: cfg.WifiInterface}
	if cfg.PingHost != "" {
		prober = chainProber{prober, pingProber{host: cfg.PingHost, timeout: 2 * time.Second, privileged: os.Geteuid() == 0}}
	}

	preview := newPreviewSink(sink, metrics)
	status := &statusBoard{}

	show := &Slideshow{
		cfg:       cfg,
		fetcher:   newHTTPFetcher(&http.Client{}, cfg.retryPolicy(), cfg.MaxImageBytes),
		composer:  &SlideComposer{Logo: logo, Width: width, Height: height},
		monitor:   newConnectivityMonitor(prober, cfg.OnlineThreshold, cfg.OfflineThreshold),
		scheduler: newRefreshScheduler(cfg.RefreshBucketMinutes, cfg.RefreshOffsetSeconds, seconds(cfg.RefreshRetrySeconds)),
		sink:      preview,
		offline:   offline,
		metrics:   metrics,
		status:    status,
		now:       time.Now,
	}
	show.state.Rotation = newSlideRotator(cfg.slideInterval())

	if cfg.ButtonDevice != "" {
		presses := make(chan struct{}, 4)
		show.presses = presses
		go watchButton(ctx, cfg.ButtonDevice, presses)
	}

	if cfg.HTTPListen != "" {
		app := newHTTPServer(preview, status, reg)
		go func() {
			log.Println("Starting Fiber server on", cfg.HTTPListen)
			if err := app.Listen(cfg.HTTPListen); err != nil {
				log.Fatalf("http server: %v", err)
			}
		}()
		defer app.Shutdown()
	}

	if err := show.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Println("shutting down")
}

func blankFrame(width, height int) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	clearFrame(frame, PAPER_WHITE)
	return frame
}
