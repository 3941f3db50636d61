package notification

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// Bounds applied to resolved images. Larger images are scaled down to fit.
const (
	MaxIconSize    = 256
	MaxImageWidth  = 1024
	MaxImageHeight = 512
)

// ImageFetcher downloads an image and reports its content type.
type ImageFetcher interface {
	FetchImage(ctx context.Context, href string) ([]byte, string, error)
}

// Button is a usable action with its resolved icon.
type Button struct {
	Action
	IconImage image.Image
}

// Rendered is a notification with its images resolved. Any image field is
// nil when the notification has none or it could not be loaded.
type Rendered struct {
	*Notification

	BadgeImage image.Image
	IconImage  image.Image
	BigImage   image.Image
	Buttons    []Button
}

// Render resolves every image referenced by n concurrently.
// The badge falls back to the icon.
func Render(ctx context.Context, n *Notification, fetcher ImageFetcher, logger *slog.Logger) *Rendered {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rendered{Notification: n}

	var buttons []Button
	var buttonIcons []string
	for i, a := range n.Actions {
		if !a.Usable() {
			continue
		}
		buttons = append(buttons, Button{Action: a})
		if i < MaxButtons {
			buttonIcons = append(buttonIcons, a.Icon)
		} else {
			buttonIcons = append(buttonIcons, "")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	load := func(href string, maxW, maxH int, dst *image.Image) {
		if href == "" {
			return
		}
		g.Go(func() error {
			img, err := fetchImage(gctx, fetcher, href, maxW, maxH)
			if err != nil {
				logger.Error("notification image unavailable", "href", href, "error", err)
				return nil
			}
			*dst = img
			return nil
		})
	}

	load(n.Badge, MaxIconSize, MaxIconSize, &r.BadgeImage)
	load(n.Icon, MaxIconSize, MaxIconSize, &r.IconImage)
	load(n.Image, MaxImageWidth, MaxImageHeight, &r.BigImage)
	for i := range buttons {
		load(buttonIcons[i], MaxIconSize, MaxIconSize, &buttons[i].IconImage)
	}
	_ = g.Wait()

	if r.BadgeImage == nil {
		r.BadgeImage = r.IconImage
	}
	r.Buttons = buttons
	return r
}

func fetchImage(ctx context.Context, fetcher ImageFetcher, href string, maxW, maxH int) (image.Image, error) {
	data, contentType, err := fetcher.FetchImage(ctx, href)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(data, contentType)
	if err != nil {
		return nil, err
	}
	return imaging.Fit(img, maxW, maxH, imaging.Lanczos), nil
}

// DecodeImage decodes PNG, JPEG, GIF, BMP, TIFF and WebP images.
func DecodeImage(data []byte, contentType string) (image.Image, error) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	switch mediaType {
	case "image/webp":
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode webp: %w", err)
		}
		return img, nil
	case "image/svg+xml":
		return nil, fmt.Errorf("decode image: %s is not supported", mediaType)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
