package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
)

// Fetch errors.
var (
	ErrNoResources = errors.New("slideshow: no resources to fetch")
	ErrEmptyImage  = errors.New("slideshow: decoded image has no pixels")
	ErrHTTPStatus  = errors.New("slideshow: unexpected http status")
	ErrTooLarge    = errors.New("slideshow: response exceeds size limit")
)

// Fingerprint is the SHA-256 of a resource's raw bytes.
type Fingerprint [sha256.Size]byte

func fingerprintOf(data []byte) Fingerprint {
	return sha256.Sum256(data)
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short is enough to tell fingerprints apart in logs.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:4])
}

// DecodedImage is one downloaded resource, ready to compose.
type DecodedImage struct {
	URL         string
	Image       image.Image
	Fingerprint Fingerprint
}

// ContentFetcher retrieves a batch of resources. Implementations return
// either one image per URL, in order, or an error; never a partial batch.
type ContentFetcher interface {
	FetchAll(ctx context.Context, urls []string) ([]DecodedImage, error)
}

// HTTPFetcher downloads resources with plain GET requests.
type HTTPFetcher struct {
	client   *http.Client
	policy   RetryPolicy
	maxBytes int64
}

func newHTTPFetcher(client *http.Client, policy RetryPolicy, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, policy: policy, maxBytes: maxBytes}
}

// FetchAll downloads every URL in order. The first URL that exhausts its
// retries aborts the batch.
func (f *HTTPFetcher) FetchAll(ctx context.Context, urls []string) ([]DecodedImage, error) {
	if len(urls) == 0 {
		return nil, ErrNoResources
	}
	batch := uuid.NewString()[:8]
	log.Printf("fetch %s: %d resources", batch, len(urls))

	images := make([]DecodedImage, 0, len(urls))
	for _, url := range urls {
		var img DecodedImage
		err := retry(ctx, f.policy, func(ctx context.Context, attempt int) error {
			log.Printf("fetch %s: downloading %s (attempt %d)", batch, url, attempt)
			var err error
			img, err = f.download(ctx, url)
			if err != nil {
				log.Printf("fetch %s: download failed: %v", batch, err)
			}
			return err
		})
		if err != nil {
			log.Printf("fetch %s: FAILED, keeping current slides", batch)
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		images = append(images, img)
	}
	log.Printf("fetch %s: SUCCESS", batch)
	return images, nil
}

func (f *HTTPFetcher) download(ctx context.Context, url string) (DecodedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DecodedImage{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return DecodedImage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DecodedImage{}, fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return DecodedImage{}, err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return DecodedImage{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	fp := fingerprintOf(data)
	img, err := decodeImage(data)
	if err != nil {
		return DecodedImage{}, err
	}
	return DecodedImage{URL: url, Image: img, Fingerprint: fp}, nil
}

// decodeImage decodes any registered raster format and rejects images
// that have no area, which the composer cannot scale.
func decodeImage(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %s %dx%d", ErrEmptyImage, format, b.Dx(), b.Dy())
	}
	return img, nil
}
