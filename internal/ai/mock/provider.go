// Package mock provides a canned ai.Provider for testing and development.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goodbreeze/breeze/internal/ai"
)

// Provider is a mock AI provider for testing and development.
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	GenerateReportResponse *ai.ReportContent
	GenerateReportError    error

	// Call tracking for testing
	GenerateReportCalls int
}

// New creates a new mock AI provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// GenerateReport returns canned report content.
func (p *Provider) GenerateReport(ctx context.Context, params ai.GenerateReportParams) (*ai.ReportContent, error) {
	p.GenerateReportCalls++

	if p.GenerateReportError != nil {
		return nil, p.GenerateReportError
	}
	if p.GenerateReportResponse != nil {
		return p.GenerateReportResponse, nil
	}

	return &ai.ReportContent{
		Title:   fmt.Sprintf("%s: %s", params.ReportType.Title(), params.Subject),
		Summary: fmt.Sprintf("This is a sample %s generated for %s. The subject shows a solid foundation with several clear opportunities for improvement.", params.ReportType.Title(), params.Subject),
		Sections: []ai.Section{
			{
				Heading: "Current Position",
				Body:    "The subject holds a moderate position in its market. Visibility is concentrated on branded terms, with limited reach into non-branded discovery queries.",
				Bullets: []string{
					"Branded search captures the majority of current traffic",
					"Non-branded rankings cluster on pages two and three",
					"Core pages load within acceptable thresholds",
				},
			},
			{
				Heading: "Key Opportunities",
				Body:    "Three areas offer the best return on effort: expanding topical coverage, consolidating duplicate pages, and improving internal link flow to commercial pages.",
			},
		},
		Recommendations: []string{
			"Publish two in-depth articles per month targeting non-branded themes",
			"Consolidate overlapping pages and redirect the weaker URLs",
			"Add contextual internal links from high-traffic content to commercial pages",
		},
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  850,
			OutputTokens: 1200,
			CostCents:    2,
			Duration:     150 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing.
func (p *Provider) Reset() {
	p.GenerateReportCalls = 0
	p.GenerateReportResponse = nil
	p.GenerateReportError = nil
}

var _ ai.Provider = (*Provider)(nil)
