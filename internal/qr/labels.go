package qr

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/voltlink-io/onboardflow/internal/models"
)

// LabelLayout configures the label sheet grid
type LabelLayout struct {
	Cols       int
	Rows       int
	MarginTop  float64
	MarginLeft float64
	GapX       float64
	GapY       float64
}

// DefaultLayout is a 3x7 A4 sheet
var DefaultLayout = LabelLayout{Cols: 3, Rows: 7, MarginTop: 10, MarginLeft: 8, GapX: 4, GapY: 4}

// GenerateLabelSheet renders one QR label per device onto an A4 PDF.
// Devices whose QR code is still the PENDING placeholder are skipped.
func GenerateLabelSheet(task *models.OnboardingTask, layout LabelLayout) ([]byte, error) {
	if layout.Cols <= 0 || layout.Rows <= 0 {
		layout = DefaultLayout
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 8)

	pageWidth, pageHeight := 210.0, 297.0
	totalGapX := float64(layout.Cols-1) * layout.GapX
	totalGapY := float64(layout.Rows-1) * layout.GapY
	availW := pageWidth - (layout.MarginLeft * 2)
	availH := pageHeight - (layout.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(layout.Cols)
	labelH := (availH - totalGapY) / float64(layout.Rows)

	labelsPerPage := layout.Cols * layout.Rows
	printed := 0

	for _, device := range task.Devices {
		if device.QRCode == models.QRCodePending {
			continue
		}

		if printed%labelsPerPage == 0 {
			pdf.AddPage()
		}

		col := printed % layout.Cols
		row := (printed / layout.Cols) % layout.Rows
		x := layout.MarginLeft + float64(col)*(labelW+layout.GapX)
		y := layout.MarginTop + float64(row)*(labelH+layout.GapY)

		png, err := qrcode.Encode(device.QRCode, qrcode.Low, 256)
		if err != nil {
			return nil, fmt.Errorf("failed to encode QR for device %s: %w", device.DeviceSerial, err)
		}

		imgName := fmt.Sprintf("qr-%s", device.DeviceSerial)
		pdf.RegisterImageOptionsReader(imgName, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))

		qrSize := labelH - 6
		if qrSize > labelW {
			qrSize = labelW
		}
		pdf.ImageOptions(imgName, x+(labelW-qrSize)/2, y, qrSize, qrSize, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.SetXY(x, y+qrSize)
		pdf.CellFormat(labelW, 5, device.DeviceSerial, "", 0, "C", false, 0, "")

		printed++
	}

	if printed == 0 {
		return nil, fmt.Errorf("task %s has no devices with generated QR codes", task.TaskNo)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render label sheet: %w", err)
	}
	return buf.Bytes(), nil
}
