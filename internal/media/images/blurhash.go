// Package images inspects downloaded cover images.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/bbrks/go-blurhash"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/listenupapp/kyobo-metadata/internal/errors"
)

// blurHashSize is the target size for BlurHash computation.
// A small thumbnail produces nearly identical hashes in a fraction of the time.
const blurHashSize = 64

var (
	// ErrNotImage is returned when the data is not an image at all.
	ErrNotImage = errors.New("not an image")

	// ErrUndecodable is returned when the data is an image in a format we
	// cannot decode. The MIME type is still reported.
	ErrUndecodable = errors.New("undecodable image")
)

// Info describes an image.
type Info struct {
	MIME     string
	Width    int
	Height   int
	BlurHash string
}

// Inspect detects the MIME type of data from its content, then decodes it to
// read the dimensions and compute a BlurHash. The returned Info carries the
// MIME type even when decoding fails with ErrUndecodable.
func Inspect(data []byte) (Info, error) {
	mtype := mimetype.Detect(data)
	info := Info{MIME: mtype.String()}
	if !strings.HasPrefix(info.MIME, "image/") {
		return Info{}, fmt.Errorf("%w: detected %s", ErrNotImage, info.MIME)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return info, fmt.Errorf("%w: %s: %v", ErrUndecodable, info.MIME, err)
	}
	bounds := img.Bounds()
	info.Width = bounds.Dx()
	info.Height = bounds.Dy()

	hash, err := ComputeBlurHash(img)
	if err != nil {
		return info, err
	}
	info.BlurHash = hash
	return info, nil
}

// ComputeBlurHash generates a BlurHash string for img.
// Uses 4x3 components for a good balance of size (~28 chars) and detail.
func ComputeBlurHash(img image.Image) (string, error) {
	thumbnail := resizeForBlurHash(img)

	// 4 horizontal, 3 vertical components - sweet spot for book covers
	hash, err := blurhash.Encode(4, 3, thumbnail)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// resizeForBlurHash creates a small thumbnail with nearest-neighbor scaling,
// keeping the aspect ratio.
func resizeForBlurHash(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	var dstWidth, dstHeight int
	if srcWidth > srcHeight {
		dstWidth = blurHashSize
		dstHeight = max((srcHeight*blurHashSize)/srcWidth, 1)
	} else {
		dstHeight = blurHashSize
		dstWidth = max((srcWidth*blurHashSize)/srcHeight, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := range dstHeight {
		for x := range dstWidth {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return dst
}
