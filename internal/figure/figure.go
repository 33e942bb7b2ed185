package figure

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"sort"

	_ "image/jpeg"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/tiff"
)

const (
	// Smallest acceptable short side, in pixels. Anything under this is
	// an icon or a logo, not a figure.
	minSide = 200
	// Largest acceptable aspect ratio in either direction. Anything
	// beyond it is a rule or a decorative strip.
	maxAspect = 6.0
)

// ErrNoFigure is returned when a document contains no image that passes the
// size and aspect filters.
var ErrNoFigure = errors.New("figure: no suitable figure found")

// MainFigure picks the paper's dominant figure: the largest embedded raster
// across all pages that passes the filters, re-encoded as PNG.
func MainFigure(pdfBytes []byte) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("figure: extraction panicked: %v", r)
		}
	}()

	candidates, err := embeddedImages(pdfBytes)
	if err != nil {
		return nil, err
	}

	img, ok := pickLargest(candidates)
	if !ok {
		return nil, ErrNoFigure
	}

	return encodePNG(img)
}

// embeddedImages returns every raster in the document as an image file
// reader, pages in order and objects in ascending number within a page.
func embeddedImages(pdfBytes []byte) ([]io.Reader, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.ExtractImagesRaw(bytes.NewReader(pdfBytes), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("figure: failed to extract images: %w", err)
	}

	var readers []io.Reader
	for _, page := range pages {
		objNrs := make([]int, 0, len(page))
		for nr := range page {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)
		for _, nr := range objNrs {
			readers = append(readers, page[nr])
		}
	}
	return readers, nil
}

// pickLargest decodes each candidate and keeps the one with the largest
// pixel area. The comparison is strict, so the earlier candidate wins ties.
// Candidates that fail to decode or fail the filters are skipped.
func pickLargest(candidates []io.Reader) (image.Image, bool) {
	var best image.Image
	var bestArea int

	for _, r := range candidates {
		img, _, err := image.Decode(r)
		if err != nil {
			continue
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		if !acceptable(w, h) {
			continue
		}
		if area := w * h; area > bestArea {
			best = img
			bestArea = area
		}
	}

	return best, best != nil
}

func acceptable(w, h int) bool {
	if w < minSide || h < minSide {
		return false
	}
	if float64(w)/float64(h) > maxAspect || float64(h)/float64(w) > maxAspect {
		return false
	}
	return true
}

// encodePNG renders the image as PNG, flattening exotic color models onto
// an RGBA canvas first.
func encodePNG(img image.Image) ([]byte, error) {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.Gray:
	default:
		b := img.Bounds()
		canvas := image.NewRGBA(b)
		draw.Draw(canvas, b, img, b.Min, draw.Src)
		img = canvas
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("figure: failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
