// Package imaging prepares report images for a vision model call. Images
// the provider can consume as-is are passed by URL; GIFs and oversized or
// degenerate dimensions are converted to an inline JPEG data URI.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Provider input constraints.
const (
	maxSide     = 2240
	minSide     = 4
	maxAspect   = 5.0
	jpegQuality = 85
)

// Kind tells how a prepared image is handed to the model.
type Kind string

const (
	KindURL     Kind = "url"
	KindDataURI Kind = "data_uri"
)

// Source is one prepared image reference.
type Source struct {
	Kind  Kind
	Value string
}

// Option configures the Preparer.
type Option func(*Preparer)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Preparer) {
		p.http = hc
	}
}

// Preparer fetches and normalizes images.
type Preparer struct {
	http *http.Client
}

// NewPreparer creates a Preparer.
func NewPreparer(opts ...Option) *Preparer {
	p := &Preparer{
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Prepare resolves an image URL into a model-consumable source. GIFs are
// re-encoded as JPEG; a GIF that cannot be fetched or decoded falls back
// to the plain URL. Other formats are fetched to check dimensions and
// downscaled only when they exceed the provider limits.
func (p *Preparer) Prepare(ctx context.Context, imageURL string) (Source, error) {
	if strings.HasSuffix(strings.ToLower(imageURL), ".gif") {
		return p.prepareGIF(ctx, imageURL), nil
	}

	img, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		return Source{}, err
	}

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if !needsResize(w, h) {
		return Source{Kind: KindURL, Value: imageURL}, nil
	}

	resized := downscale(img, w, h)
	uri, err := jpegDataURI(resized)
	if err != nil {
		return Source{}, err
	}
	return Source{Kind: KindDataURI, Value: uri}, nil
}

func (p *Preparer) prepareGIF(ctx context.Context, imageURL string) Source {
	body, err := p.fetch(ctx, imageURL)
	if err != nil {
		zap.L().Debug("imaging: gif fetch failed, passing url through", zap.Error(err))
		return Source{Kind: KindURL, Value: imageURL}
	}
	img, err := gif.Decode(bytes.NewReader(body))
	if err != nil {
		zap.L().Debug("imaging: gif decode failed, passing url through", zap.Error(err))
		return Source{Kind: KindURL, Value: imageURL}
	}
	uri, err := jpegDataURI(img)
	if err != nil {
		return Source{Kind: KindURL, Value: imageURL}
	}
	return Source{Kind: KindDataURI, Value: uri}
}

func (p *Preparer) fetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	body, err := p.fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "imaging: decode %s", imageURL)
	}
	return img, nil
}

func (p *Preparer) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "imaging: create request")
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "imaging: fetch image")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("imaging: fetch %s status %d", imageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "imaging: read image body")
	}
	return body, nil
}

func needsResize(w, h int) bool {
	ratio := aspect(w, h)
	return ratio > maxAspect || max(w, h) > maxSide || min(w, h) < minSide
}

func aspect(w, h int) float64 {
	a := float64(w) / float64(h)
	if a < 1 {
		a = 1 / a
	}
	return a
}

// downscale shrinks to the provider bounds preserving aspect ratio, then
// clamps the ratio itself to maxAspect.
func downscale(img image.Image, w, h int) image.Image {
	var newW, newH int
	if w > h {
		newW = min(w, maxSide)
		newH = max(minSide, int(float64(newW)/(float64(w)/float64(h))))
	} else {
		newH = min(h, maxSide)
		newW = max(minSide, int(float64(newH)*(float64(w)/float64(h))))
	}

	if aspect(newW, newH) > maxAspect {
		if newW > newH {
			newW = min(newH*int(maxAspect), maxSide)
		} else {
			newH = min(newW*int(maxAspect), maxSide)
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func jpegDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", eris.Wrap(err, "imaging: encode jpeg")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
