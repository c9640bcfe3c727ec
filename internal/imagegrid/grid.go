// Package imagegrid downloads a set of product images concurrently and
// tiles them into one composite grid image for batched visual comparison.
package imagegrid

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	// Registered decoders for the formats marketplaces serve.
	_ "image/gif"
	_ "image/png"
)

// ErrNoImages is returned when zero downloads succeed.
var ErrNoImages = errors.New("no images could be downloaded")

// Config holds grid assembly settings.
type Config struct {
	// Columns is the grid width in cells.
	Columns int
	// CellSize is the square cell edge in pixels.
	CellSize int
	// Workers bounds concurrent downloads.
	Workers int
	// Retries is the per-URL download attempt count.
	Retries int
	// Timeout is the per-request download timeout.
	Timeout time.Duration
	Logger  *slog.Logger
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Grid is the result of one assembly call. It is ephemeral: callers encode
// it for transport and discard it.
type Grid struct {
	// Image is the composite canvas.
	Image *image.RGBA
	// Failed lists URLs whose download or decode failed; their cells are
	// left blank.
	Failed []string
}

// Assembler builds composite grids.
type Assembler struct {
	columns  int
	cellSize int
	workers  int
	retries  int
	logger   *slog.Logger

	client         *http.Client
	insecureClient *http.Client
}

// New creates a new Assembler.
func New(cfg Config) *Assembler {
	if cfg.Columns <= 0 {
		cfg.Columns = 5
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = 150
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	// Separate client with certificate verification disabled, used for
	// exactly one fallback attempt after a TLS failure.
	insecure := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	return &Assembler{
		columns:        cfg.Columns,
		cellSize:       cfg.CellSize,
		workers:        cfg.Workers,
		retries:        cfg.Retries,
		logger:         logger.With("component", "imagegrid"),
		client:         client,
		insecureClient: insecure,
	}
}

// Assemble downloads the given URLs and tiles them into a grid.
// Cells are placed by the URL's original index (row-major, 1-indexed),
// independent of download completion order, so the layout is deterministic.
// It fails only when zero images succeed.
func (a *Assembler) Assemble(ctx context.Context, urls []string) (*Grid, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no image URLs to assemble")
	}

	cells := make([]image.Image, len(urls))
	failed := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, u := range urls {
		g.Go(func() error {
			img, err := a.fetch(gctx, u)
			if err != nil {
				a.logger.Warn("image download failed", "url", u, "error", err)
				failed[i] = true
				return nil
			}
			cells[i] = a.resize(img)
			return nil
		})
	}
	// Workers swallow per-URL errors, so this only surfaces ctx errors.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failedURLs []string
	success := 0
	for i := range urls {
		if failed[i] {
			failedURLs = append(failedURLs, urls[i])
		} else {
			success++
		}
	}
	if success == 0 {
		return nil, fmt.Errorf("%w: %d urls", ErrNoImages, len(urls))
	}

	rows := (len(urls) + a.columns - 1) / a.columns
	canvas := image.NewRGBA(image.Rect(0, 0, a.columns*a.cellSize, rows*a.cellSize))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	for i, cell := range cells {
		if cell == nil {
			continue
		}
		row := i / a.columns
		col := i % a.columns
		x := col * a.cellSize
		y := row * a.cellSize

		rect := image.Rect(x, y, x+a.cellSize, y+a.cellSize)
		draw.Draw(canvas, rect, cell, image.Point{}, draw.Src)
		drawBorder(canvas, rect)
	}

	a.logger.Debug("grid assembled",
		"total", len(urls), "success", success, "failed", len(failedURLs),
		"rows", rows, "columns", a.columns)

	return &Grid{Image: canvas, Failed: failedURLs}, nil
}

// fetch downloads and decodes one image with bounded retries.
// Transient HTTP statuses are retried with exponential backoff; a TLS
// certificate failure triggers exactly one fallback attempt with
// verification disabled.
func (a *Assembler) fetch(ctx context.Context, url string) (image.Image, error) {
	img, err := retry.DoWithData(
		func() (image.Image, error) {
			return a.fetchOnce(ctx, a.client, url)
		},
		retry.Context(ctx),
		retry.Attempts(uint(a.retries)),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return img, nil
	}

	if isTLSError(err) {
		return a.fetchOnce(ctx, a.insecureClient, url)
	}
	return nil, err
}

// fetchOnce performs a single download and decode.
func (a *Assembler) fetchOnce(ctx context.Context, client *http.Client, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d", resp.StatusCode)
		if !transientStatus(resp.StatusCode) {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("decode failed: %w", err))
	}
	return img, nil
}

// transientStatus reports whether a status code is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isTLSError reports whether err stems from certificate verification.
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostnameErr x509.HostnameError
	return errors.As(err, &hostnameErr)
}

// resize scales an image to the cell size with a quality-preserving filter.
func (a *Assembler) resize(src image.Image) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, a.cellSize, a.cellSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// drawBorder draws a thin gray border inside the given cell rect.
func drawBorder(canvas *image.RGBA, rect image.Rectangle) {
	gray := color.RGBA{R: 180, G: 180, B: 180, A: 255}
	const width = 2

	for t := 0; t < width; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			canvas.SetRGBA(x, rect.Min.Y+t, gray)
			canvas.SetRGBA(x, rect.Max.Y-1-t, gray)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			canvas.SetRGBA(rect.Min.X+t, y, gray)
			canvas.SetRGBA(rect.Max.X-1-t, y, gray)
		}
	}
}

// EncodeJPEG encodes the grid canvas as JPEG for transport to the vision
// judge.
func (g *Grid) EncodeJPEG() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, g.Image, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	return buf.Bytes(), nil
}
