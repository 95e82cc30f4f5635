// Package imaging normalizes user-submitted and generated photos: bounded
// dimensions, JPEG encoding, metadata stripped by the re-encode.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

const (
	defaultMaxSide     = 1024
	defaultPreviewSide = 240
	defaultQuality     = 85
)

type Processor struct {
	maxSide     int
	previewSide int
	quality     int
}

func NewProcessor() *Processor {
	return &Processor{
		maxSide:     defaultMaxSide,
		previewSide: defaultPreviewSide,
		quality:     defaultQuality,
	}
}

// Normalize decodes an image, scales it down so its longest side does not
// exceed the bound, and re-encodes it as JPEG.
func (p *Processor) Normalize(data []byte) ([]byte, error) {
	return p.render(data, p.maxSide)
}

// Preview produces a small rendition suitable as a message thumbnail.
func (p *Processor) Preview(data []byte) ([]byte, error) {
	return p.render(data, p.previewSide)
}

func (p *Processor) render(data []byte, maxSide int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img := scaleDown(src, maxSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func scaleDown(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}

	nw, nh := w, h
	if w >= h {
		nw = maxSide
		nh = h * maxSide / w
	} else {
		nh = maxSide
		nw = w * maxSide / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
