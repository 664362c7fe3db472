package anthropic

import (
	"fmt"

	"github.com/goodbreeze/breeze/internal/domain"
)

// buildReportPrompt creates the generation prompt for one report type.
func buildReportPrompt(reportType domain.ReportType, subject string) string {
	var brief string
	switch reportType {
	case domain.ReportTypeSEOAudit:
		brief = fmt.Sprintf(`You are a senior SEO consultant writing a full technical and on-page SEO audit for the website %q.

Cover these areas, each as its own section:
1. Technical health - crawlability, indexation, site speed, mobile readiness, structured data
2. On-page optimization - title tags, meta descriptions, heading structure, internal linking
3. Content quality - topical coverage, thin or duplicate content, E-E-A-T signals
4. Backlink profile - authority, anchor text distribution, toxic link risk
5. Competitive positioning - where the site stands in its niche`, subject)

	case domain.ReportTypeCompetitor:
		brief = fmt.Sprintf(`You are a competitive intelligence analyst writing a competitive analysis for the business or website %q.

Cover these areas, each as its own section:
1. Market landscape - who the main competitors are and how the market segments
2. Competitor strengths and weaknesses - product, pricing, positioning
3. Digital presence comparison - search visibility, content strategy, social reach
4. Differentiation opportunities - gaps the subject can exploit
5. Threats - competitor moves that could erode the subject's position`, subject)

	case domain.ReportTypeKeywordResearch:
		brief = fmt.Sprintf(`You are an SEO strategist writing a keyword research report for the website or topic %q.

Cover these areas, each as its own section:
1. Seed keyword themes - the core topics the subject should own
2. High-intent commercial keywords - terms likely to convert
3. Informational long-tail opportunities - question and comparison queries
4. Difficulty and prioritization - which terms to target first and why
5. Content mapping - what page or article should target each theme`, subject)

	case domain.ReportTypeSEOSnapshot:
		brief = fmt.Sprintf(`You are an SEO consultant writing a brief introductory SEO snapshot for the website %q. Keep it short and approachable for a non-technical business owner.

Cover these areas, each as its own section:
1. First impressions - what stands out about the site's search presence
2. Quick wins - three easy improvements with outsized impact
3. Biggest risk - the single issue most likely to hold the site back`, subject)

	default:
		brief = fmt.Sprintf(`You are a business analyst writing a concise report about %q.`, subject)
	}

	return brief + `

Base the report on well-established industry knowledge and best practice for this kind of business. Where specifics about the subject are unknowable, give concrete guidance framed as what to check and how.

**Response Format:**
Return your report as a JSON object with this exact structure:

{
  "title": "Report title including the subject",
  "summary": "Executive summary, 2-4 sentences",
  "sections": [
    {
      "heading": "Section heading",
      "body": "One or two paragraphs of section body text",
      "bullets": ["Optional bullet points after the body"]
    }
  ],
  "recommendations": ["Prioritized, actionable next steps"]
}

**Important:** Return ONLY the JSON object, no additional text or explanation.`
}
