// Package thumbnail shrinks family preview images before upload.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

// JPEGQuality is used when re-encoding JPEG thumbnails.
const JPEGQuality = 85

// Result is a re-encoded thumbnail ready to be sent as a file part.
type Result struct {
	Data        []byte
	Format      string
	ContentType string
	Width       int
	Height      int
	Resized     bool
}

// Reader returns the encoded image as an io.Reader.
func (r *Result) Reader() io.Reader {
	return bytes.NewReader(r.Data)
}

// Fit returns the dimensions that scale w×h so the longest side equals
// maxSide. Images already within the limit keep their size.
func Fit(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}

// Resize decodes an image from r and scales it so its longest side is at most
// maxSide, using Lanczos3. maxSide <= 0 disables scaling. PNG stays PNG,
// everything else is re-encoded as JPEG.
func Resize(r io.Reader, maxSide int) (*Result, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	b := img.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxSide)
	resized := w != b.Dx() || h != b.Dy()
	if resized {
		img = resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	res := &Result{Width: w, Height: h, Resized: resized}
	switch format {
	case "png":
		err = png.Encode(&buf, img)
		res.Format, res.ContentType = "png", "image/png"
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
		res.Format, res.ContentType = "jpeg", "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", res.Format, err)
	}
	res.Data = buf.Bytes()
	return res, nil
}

// ResizeFile opens path and resizes it. See Resize.
func ResizeFile(path string, maxSide int) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening thumbnail: %w", err)
	}
	defer f.Close()

	res, err := Resize(f, maxSide)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return res, nil
}

// FileName swaps the extension of name to match the encoded format.
func FileName(name string, res *Result) string {
	ext := ".jpg"
	if res.Format == "png" {
		ext = ".png"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
