package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	// Registered decoders for frames from cameras and uploads.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DataURIPrefix marks a base64 JPEG payload.
	DataURIPrefix = "data:image/jpeg;base64,"

	// jpegQuality is the quality of re-encoded frames.
	jpegQuality = 85
)

// Normalize decodes the frame, scales it down to maxWidth keeping the aspect
// ratio and re-encodes it as JPEG. A non-positive maxWidth keeps the size.
func Normalize(data []byte, maxWidth int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	bounds := src.Bounds()
	if maxWidth > 0 && bounds.Dx() > maxWidth {
		height := max(1, bounds.Dy()*maxWidth/bounds.Dx())
		scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Src, nil)
		src = scaled
	} else if format == "jpeg" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	return buf.Bytes(), nil
}

// Encode normalises the frame and returns it as a base64 JPEG data URI.
func Encode(frame *Frame, maxWidth int) (string, error) {
	data, err := Normalize(frame.Data, maxWidth)
	if err != nil {
		return "", err
	}

	return DataURIPrefix + base64.StdEncoding.EncodeToString(data), nil
}
