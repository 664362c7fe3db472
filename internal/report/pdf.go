package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/goodbreeze/breeze/internal/ai"
	"github.com/goodbreeze/breeze/internal/domain"
)

// PDFRenderer renders report content as an A4 PDF.
type PDFRenderer struct {
	pageWidth    float64 // A4 width in mm
	pageHeight   float64 // A4 height in mm
	margin       float64
	contentWidth float64
}

// NewPDFRenderer creates a PDF renderer with default page settings.
func NewPDFRenderer() *PDFRenderer {
	margin := 15.0
	pageWidth := 210.0
	return &PDFRenderer{
		pageWidth:    pageWidth,
		pageHeight:   297.0,
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
	}
}

// Render writes the report PDF to w.
func (g *PDFRenderer) Render(ctx context.Context, report *domain.Report, content *ai.ReportContent, w io.Writer) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	pdf := fpdf.New("P", "mm", "A4", "")

	pdf.SetTitle(content.Title, true)
	pdf.SetCreator("Good Breeze AI", true)
	pdf.SetAutoPageBreak(true, 20)

	generatedAt := time.Now()
	pdf.SetFooterFunc(func() {
		g.addFooter(pdf, generatedAt)
	})

	g.addCoverPage(pdf, report, content)
	g.addBody(pdf, content)
	if len(content.Recommendations) > 0 {
		g.addRecommendations(pdf, content)
	}

	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func (g *PDFRenderer) addCoverPage(pdf *fpdf.Fpdf, report *domain.Report, content *ai.ReportContent) {
	pdf.AddPage()

	// Indigo header bar
	r, gr, b := HexToRGB(BrandColors.Indigo)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(0, 0, g.pageWidth, 70, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 26)
	pdf.SetXY(g.margin, 22)
	pdf.Cell(0, 12, report.Type.Title())

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(g.margin, 40)
	pdf.Cell(0, 8, report.Subject)

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)

	pdf.SetXY(g.margin, 90)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "PREPARED FOR")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, report.Subject)

	pdf.Ln(15)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "DATE")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, FormatDate(report.CreatedAt))

	if content.Summary != "" {
		pdf.Ln(20)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "EXECUTIVE SUMMARY")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(g.contentWidth, 6, content.Summary, "", "L", false)
	}
}

func (g *PDFRenderer) addBody(pdf *fpdf.Fpdf, content *ai.ReportContent) {
	pdf.AddPage()

	for i, section := range content.Sections {
		// Leave room for at least the section heading and a few lines.
		if i > 0 && pdf.GetY() > 230 {
			pdf.AddPage()
		}

		g.addSectionHeader(pdf, section.Heading)

		pdf.SetFont("Helvetica", "", 10)
		if section.Body != "" {
			pdf.MultiCell(g.contentWidth, 5.5, section.Body, "", "L", false)
			pdf.Ln(3)
		}

		for _, bullet := range section.Bullets {
			pdf.SetX(g.margin + 4)
			pdf.CellFormat(4, 5.5, "-", "", 0, "L", false, 0, "")
			pdf.MultiCell(g.contentWidth-8, 5.5, bullet, "", "L", false)
		}

		if i < len(content.Sections)-1 {
			pdf.Ln(8)
		}
	}
}

func (g *PDFRenderer) addRecommendations(pdf *fpdf.Fpdf, content *ai.ReportContent) {
	if pdf.GetY() > 200 {
		pdf.AddPage()
	} else {
		pdf.Ln(10)
	}

	g.addSectionHeader(pdf, "Recommendations")

	pdf.SetFont("Helvetica", "", 10)
	for i, rec := range content.Recommendations {
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
		pdf.SetX(g.margin + 2)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(8, 5.5, fmt.Sprintf("%d.", i+1), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth-10, 5.5, rec, "", "L", false)
		pdf.Ln(2)
	}
}

func (g *PDFRenderer) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	r, gr, b := HexToRGB(BrandColors.Indigo)
	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.5)

	pdf.SetFont("Helvetica", "B", 15)
	pdf.SetTextColor(r, gr, b)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(8)

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
}

func (g *PDFRenderer) addFooter(pdf *fpdf.Fpdf, generatedAt time.Time) {
	pdf.SetY(-15)

	r, gr, b := HexToRGB(BrandColors.Border)
	pdf.SetDrawColor(r, gr, b)
	pdf.Line(g.margin, pdf.GetY()-3, g.pageWidth-g.margin, pdf.GetY()-3)

	r, gr, b = HexToRGB(BrandColors.TextMuted)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont("Helvetica", "", 8)

	pdf.Cell(0, 10, "Generated by Good Breeze AI on "+FormatDateTime(generatedAt))

	pdf.SetX(-g.margin - 30)
	pdf.CellFormat(30, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
}

var _ Renderer = (*PDFRenderer)(nil)
