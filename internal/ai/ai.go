// Package ai defines the provider interface for AI-generated report content.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
)

// Provider generates the structured content of a business report.
type Provider interface {
	// GenerateReport produces the content for one report. The result is
	// structured text ready for PDF rendering.
	GenerateReport(ctx context.Context, params GenerateReportParams) (*ReportContent, error)
}

// GenerateReportParams contains parameters for report generation.
type GenerateReportParams struct {
	ReportType domain.ReportType // Which catalog product to generate
	Subject    string            // Domain or topic the report is about
	ReportID   uuid.UUID         // Report ID for tracking
}

// ReportContent is the structured output of a generation run.
type ReportContent struct {
	Title           string    // Report title line
	Summary         string    // Executive summary paragraph
	Sections        []Section // Body sections in presentation order
	Recommendations []string  // Actionable next steps
	Usage           UsageInfo // Token usage and cost information
}

// Section is one titled block of report body text.
type Section struct {
	Heading string
	Body    string
	Bullets []string // Optional bullet list rendered after the body
}

// UsageInfo tracks API usage for billing and monitoring.
type UsageInfo struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostCents    int // Estimated cost in cents
	Duration     time.Duration
}

// ProviderConfig contains common configuration for AI providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations.
var (
	// EAIRateLimit indicates the API rate limit has been exceeded.
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidRequest indicates the request was rejected as malformed.
	EAIInvalidRequest = errors.New("invalid ai request")

	// EAITimeout indicates the request timed out.
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable.
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials.
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
