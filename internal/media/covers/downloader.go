// Package covers fetches cover images and turns them into embeddable data URIs.
package covers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/media/images"
	"github.com/listenupapp/kyobo-metadata/internal/metadata/kyobo"
)

const (
	// maxCoverSize limits how much image data is embedded.
	maxCoverSize = 5 * 1024 * 1024 // 5MB

	// downloadTimeout bounds a cover download including retries.
	downloadTimeout = 30 * time.Second

	imageAccept = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// Source fetches raw bytes. *kyobo.Client satisfies it.
type Source interface {
	GetBytes(ctx context.Context, rawURL string, opts ...kyobo.RequestOption) ([]byte, string, error)
}

// Cover is a downloaded cover image ready for embedding.
type Cover struct {
	URL      string `json:"url"`
	MIME     string `json:"mime"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size"`
	BlurHash string `json:"blurhash,omitempty"`
	DataURI  string `json:"data_uri"`
}

// Downloader fetches covers through the shared retrieval client.
type Downloader struct {
	source  Source
	referer string
	logger  *slog.Logger
}

// NewDownloader creates a cover downloader. Requests carry referer when it is set.
func NewDownloader(source Source, referer string, log *slog.Logger) *Downloader {
	return &Downloader{
		source:  source,
		referer: referer,
		logger:  logger.Component(log, "covers"),
	}
}

// Download fetches the image at url and encodes it as a data URI.
// Dimensions and BlurHash are best effort: an image in a format we cannot
// decode is still embedded.
func (d *Downloader) Download(ctx context.Context, url string) (*Cover, error) {
	if url == "" {
		return nil, errors.Validation("empty cover URL")
	}

	downloadCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	opts := []kyobo.RequestOption{kyobo.WithAccept(imageAccept)}
	if d.referer != "" {
		opts = append(opts, kyobo.WithReferer(d.referer))
	}

	data, _, err := d.source.GetBytes(downloadCtx, url, opts...)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Parse(url, "empty image body")
	}
	if len(data) > maxCoverSize {
		return nil, errors.Parsef(url, "image exceeds %d bytes", maxCoverSize)
	}

	info, err := images.Inspect(data)
	switch {
	case errors.Is(err, images.ErrNotImage):
		return nil, errors.Parse(url, "response is not an image").WithCause(err)
	case err != nil:
		d.logger.Warn("failed to inspect cover",
			"url", url,
			"error", err,
		)
		// Continue without dimensions - the image is still valid
	}

	cover := &Cover{
		URL:      url,
		MIME:     info.MIME,
		Width:    info.Width,
		Height:   info.Height,
		Size:     int64(len(data)),
		BlurHash: info.BlurHash,
		DataURI:  DataURI(info.MIME, data),
	}

	d.logger.Info("downloaded cover",
		"url", url,
		"mime", cover.MIME,
		"size", cover.Size,
		"width", cover.Width,
		"height", cover.Height,
	)
	return cover, nil
}

// DataURI encodes data as a base64 data URI of the given MIME type.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
