// Package qr renders device QR payloads as PNG images and prints label
// sheets for a task's provisioned devices.
package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

// RenderPNG encodes a QR payload string as a PNG image
func RenderPNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("QR payload is empty")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, defaultSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
