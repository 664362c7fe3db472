package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Report types
// =============================================================================

// ReportType identifies one of the sellable report products.
type ReportType string

const (
	ReportTypeSEOAudit        ReportType = "seo_audit"
	ReportTypeCompetitor      ReportType = "competitor_analysis"
	ReportTypeKeywordResearch ReportType = "keyword_research"

	// ReportTypeSEOSnapshot is the frictionless lead-gen report: no login,
	// no debit. It shares the admission code path so the catalog flag is
	// the only thing that distinguishes it.
	ReportTypeSEOSnapshot ReportType = "seo_snapshot"
)

// ReportTypeInfo describes a catalog entry.
type ReportTypeInfo struct {
	Type         ReportType
	Title        string
	FreeEligible bool // Admitted without authentication or debit
}

// ReportCatalog is the static per-type configuration consulted by the
// entitlement engine.
var ReportCatalog = map[ReportType]ReportTypeInfo{
	ReportTypeSEOAudit:        {Type: ReportTypeSEOAudit, Title: "SEO Audit"},
	ReportTypeCompetitor:      {Type: ReportTypeCompetitor, Title: "Competitive Analysis"},
	ReportTypeKeywordResearch: {Type: ReportTypeKeywordResearch, Title: "Keyword Research"},
	ReportTypeSEOSnapshot:     {Type: ReportTypeSEOSnapshot, Title: "SEO Snapshot", FreeEligible: true},
}

// IsValid returns true if the type is in the catalog.
func (t ReportType) IsValid() bool {
	_, ok := ReportCatalog[t]
	return ok
}

// FreeEligible reports whether the type is on the frictionless path.
func (t ReportType) FreeEligible() bool {
	return ReportCatalog[t].FreeEligible
}

// Title returns the display title for the type.
func (t ReportType) Title() string {
	return ReportCatalog[t].Title
}

// =============================================================================
// Report lifecycle
// =============================================================================

// ReportStatus is a state in the report lifecycle machine:
//
//	pending -> processing -> completed
//	pending|processing    -> failed
//
// completed and failed are terminal.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// IsTerminal returns true for states with no outgoing transitions.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// StaleReportThreshold is how long a report may sit in pending/processing
// before the sweep treats it as failed.
const StaleReportThreshold = 3 * time.Hour

// ReportRetention is how long a completed report's PDF stays downloadable.
const ReportRetention = 30 * 24 * time.Hour

// DebitSource records which balance funded a report's admission, so a
// failure can refund exactly that balance.
type DebitSource string

const (
	DebitSourceSubscription DebitSource = "subscription"
	DebitSourcePack         DebitSource = "pack"
	DebitSourceFree         DebitSource = "free" // no balance touched
)

// Report is one generation request.
type Report struct {
	ID      uuid.UUID
	UserID  *uuid.UUID // nil for unauthenticated free-path reports
	Type    ReportType
	Subject string // Domain or topic the report is about
	Status  ReportStatus

	// Debit bookkeeping, written at admission and read by the refund path.
	DebitSource    DebitSource
	DebitedCredit  *uuid.UUID // Ledger row debited, when source is pack
	DebitedSub     *uuid.UUID // Subscription debited, when source is subscription
	RefundedAt     *time.Time // Set exactly once, by the failure transition
	FailureMessage string

	PDFURL      string
	CreatedAt   time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time // PDF availability, not lifecycle
}

// IsStale reports whether a non-terminal report is older than the sweep
// threshold at the given time.
func (r *Report) IsStale(now time.Time) bool {
	if r.Status.IsTerminal() {
		return false
	}
	return now.Sub(r.CreatedAt) > StaleReportThreshold
}

// NewReportParams describes an admission-time report insert.
type NewReportParams struct {
	UserID  *uuid.UUID
	Type    ReportType
	Subject string
}
