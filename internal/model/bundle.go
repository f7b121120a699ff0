package model

// EvidenceItem represents one rule-derived risk signal shown to the user
type EvidenceItem struct {
	Key          string   `json:"key"`            // Stable identifier, unique within a bundle
	Severity     Severity `json:"severity"`       // HIGH, MEDIUM, LOW
	Message      string   `json:"message"`        // User-facing fact
	WhyItMatters string   `json:"why_it_matters"` // Consequence explanation
	UserAction   string   `json:"user_action"`    // Imperative guidance
}

// Severity classifies how serious an evidence item is
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// RiskLevel is the authoritative verdict copied from the analysis record.
// It is never recomputed downstream - the explainer explains, it does not score.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "HIGH"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskLow     RiskLevel = "LOW"
	RiskUnknown RiskLevel = "UNKNOWN"
)

// Coverage indicates whether the underlying analysis examined the full target
type Coverage string

const (
	CoverageAll     Coverage = "ALL"
	CoveragePartial Coverage = "PARTIAL"
	CoverageUnknown Coverage = "UNKNOWN"
)

// EvidenceBundle is the canonical, UI- and prompt-ready view of one analysis
// result. It is constructed fresh per request from a fetched record and never
// persisted itself.
type EvidenceBundle struct {
	RequestID     string           `json:"request_id"`
	ExtractedURL  string           `json:"extracted_url"`
	TargetURL     string           `json:"target_url"`
	FinalURL      string           `json:"final_url"`
	RawText       string           `json:"raw_text"`
	RiskLevel     RiskLevel        `json:"risk_level"`
	RiskScore     float64          `json:"risk_score"`
	Screenshot    map[string]any   `json:"screenshot,omitempty"`
	RedirectChain []map[string]any `json:"redirect_chain"`
	Evidence      []EvidenceItem   `json:"evidence"`
	Coverage      Coverage         `json:"coverage"`
	Limitations   []string         `json:"limitations"`
}
