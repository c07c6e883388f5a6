package notes

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Attachment is an image staged for the next note submission.
type Attachment struct {
	Data     []byte
	Name     string
	MimeType string
}

const (
	DefaultImageMaxEdge = 1280
	DefaultImageQuality = 80

	// maxAttachmentBytes rejects uploads before decoding even starts.
	maxAttachmentBytes = 10 << 20
)

var (
	ErrImageTooLarge = errors.New("image exceeds the maximum attachment size")
	ErrImageDecode   = errors.New("image could not be decoded")
)

// Compressor re-encodes attached images to a bounded resolution before they
// are persisted. Re-encoding always produces JPEG, whatever came in.
type Compressor struct {
	MaxEdge int
	Quality int
}

func NewCompressor() Compressor {
	return Compressor{MaxEdge: DefaultImageMaxEdge, Quality: DefaultImageQuality}
}

// Compress decodes data, scales it down so the longer edge fits MaxEdge, and
// re-encodes as JPEG. Images already inside the bound are still re-encoded so
// the persisted format is uniform.
func (c Compressor) Compress(data []byte, name string) (Attachment, error) {
	if len(data) > maxAttachmentBytes {
		return Attachment{}, ErrImageTooLarge
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	maxEdge := c.MaxEdge
	if maxEdge <= 0 {
		maxEdge = DefaultImageMaxEdge
	}
	quality := c.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultImageQuality
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxEdge || h > maxEdge {
		if w >= h {
			h = h * maxEdge / w
			w = maxEdge
		} else {
			w = w * maxEdge / h
			h = maxEdge
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		src = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return Attachment{}, err
	}
	return Attachment{Data: buf.Bytes(), Name: name, MimeType: "image/jpeg"}, nil
}
