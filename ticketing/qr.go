package ticketing

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/gosimple/slug"
	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// GenerateQRCode renders content as a PNG QR image.
func GenerateQRCode(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AttachmentName is the file name used for a ticket QR image in mail and downloads.
func AttachmentName(movieTitle, seat string) string {
	name := slug.Make(movieTitle)
	if name == "" {
		name = "session"
	}
	return fmt.Sprintf("ticket-%s-%s.png", name, strings.ToLower(seat))
}
