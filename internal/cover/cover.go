// Package cover re-encodes downloaded cover art as PNG, the only image type
// the assembler embeds.
package cover

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"
)

// ToPNG decodes a JPEG, PNG, GIF or WebP image and encodes it as PNG.
func ToPNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cover: decode: %w", err)
	}
	if format == "png" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("cover: encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
