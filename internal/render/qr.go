package render

import (
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// CodePNGSize is the edge length of the code image in pixels.
const CodePNGSize = 256

var ErrEmptyCode = errors.New("render: empty code")

// CodePNG encodes a lecture code as a QR image so a classroom projector can
// show it next to the typed form.
func CodePNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if size <= 0 {
		size = CodePNGSize
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
