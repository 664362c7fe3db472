// Package report renders generated report content into downloadable PDFs
// in the Good Breeze brand style.
package report

import (
	"context"
	"io"

	"github.com/goodbreeze/breeze/internal/ai"
	"github.com/goodbreeze/breeze/internal/domain"
)

// Renderer turns structured report content into a document.
type Renderer interface {
	// Render writes the document to w.
	// Returns the number of bytes written and any error.
	Render(ctx context.Context, report *domain.Report, content *ai.ReportContent, w io.Writer) (int64, error)
}

// BrandColors defines the color palette for rendered reports.
var BrandColors = struct {
	Indigo     string // Primary brand color
	Sky        string // Accent color
	TextDark   string // Primary text
	TextMuted  string // Secondary text
	Border     string // Borders and dividers
	Background string // Light background
}{
	Indigo:     "#1E2B5F",
	Sky:        "#2563EB",
	TextDark:   "#1F2937",
	TextMuted:  "#6B7280",
	Border:     "#E5E7EB",
	Background: "#F9FAFB",
}

// HexToRGB converts a hex color string to RGB values.
// Input format: "#RRGGBB" or "RRGGBB"
func HexToRGB(hex string) (r, g, b int) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}

	r = hexToDec(hex[0:2])
	g = hexToDec(hex[2:4])
	b = hexToDec(hex[4:6])
	return
}

func hexToDec(hex string) int {
	val := 0
	for _, c := range hex {
		val *= 16
		switch {
		case c >= '0' && c <= '9':
			val += int(c - '0')
		case c >= 'a' && c <= 'f':
			val += int(c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			val += int(c - 'A' + 10)
		}
	}
	return val
}

// FormatDate formats a date for display in reports.
func FormatDate(t interface{ Format(string) string }) string {
	return t.Format("January 2, 2006")
}

// FormatDateTime formats a datetime for display in reports.
func FormatDateTime(t interface{ Format(string) string }) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}
