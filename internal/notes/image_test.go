package notes

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 10 {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode compressed output: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestCompress_ScalesDownLongEdge(t *testing.T) {
	c := Compressor{MaxEdge: 100, Quality: 80}
	att, err := c.Compress(encodePNG(t, 400, 200), "shot.png")
	if err != nil {
		t.Fatalf("Compress returned error: %v", err)
	}
	w, h := decodeSize(t, att.Data)
	if w != 100 || h != 50 {
		t.Fatalf("scaled to %dx%d, want 100x50", w, h)
	}
	if att.MimeType != "image/jpeg" {
		t.Fatalf("mime = %q", att.MimeType)
	}
	if att.Name != "shot.png" {
		t.Fatalf("name = %q", att.Name)
	}
}

func TestCompress_PortraitOrientation(t *testing.T) {
	c := Compressor{MaxEdge: 100, Quality: 80}
	att, err := c.Compress(encodePNG(t, 200, 400), "tall.png")
	if err != nil {
		t.Fatalf("Compress returned error: %v", err)
	}
	w, h := decodeSize(t, att.Data)
	if w != 50 || h != 100 {
		t.Fatalf("scaled to %dx%d, want 50x100", w, h)
	}
}

func TestCompress_SmallImageKeepsDimensions(t *testing.T) {
	c := NewCompressor()
	att, err := c.Compress(encodePNG(t, 60, 40), "small.png")
	if err != nil {
		t.Fatalf("Compress returned error: %v", err)
	}
	w, h := decodeSize(t, att.Data)
	if w != 60 || h != 40 {
		t.Fatalf("dimensions changed to %dx%d", w, h)
	}
}

func TestCompress_CorruptData(t *testing.T) {
	c := NewCompressor()
	_, err := c.Compress([]byte("not an image at all"), "x.bin")
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("expected ErrImageDecode, got %v", err)
	}
}

func TestCompress_OversizedPayloadRejected(t *testing.T) {
	c := NewCompressor()
	_, err := c.Compress(make([]byte, maxAttachmentBytes+1), "huge.bin")
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}
