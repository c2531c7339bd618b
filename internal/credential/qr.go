package credential

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ContentType of rendered credentials.
const ContentType = "image/png"

// Renderer turns a payload into a scannable image.
type Renderer interface {
	Render(payload string) ([]byte, error)
}

// QRRenderer renders PNG QR codes with low error correction and ten pixels
// per module. Output is deterministic for a given payload.
type QRRenderer struct {
	Level         qrcode.RecoveryLevel
	PixelsPerCell int
}

// NewQRRenderer returns a renderer with the defaults used for entrance scans.
func NewQRRenderer() *QRRenderer {
	return &QRRenderer{Level: qrcode.Low, PixelsPerCell: 10}
}

// Render encodes payload. An empty payload is rejected.
func (r *QRRenderer) Render(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("credential payload is empty")
	}
	png, err := qrcode.Encode(payload, r.Level, -r.PixelsPerCell)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// ObjectKey is the deterministic storage key of a user's credential image.
func ObjectKey(userID string) string {
	return userID + ".png"
}
