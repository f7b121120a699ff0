package extract

import "github.com/smishguard/explaind/internal/model"

// RecordDetailsAdapter handles the narrower persisted-record shape: the
// details payload stored alongside a result row, with target/final URLs at
// the top level and findings nested under "details". It doubles as the
// fallback for payloads no adapter recognizes.
type RecordDetailsAdapter struct{}

// NewRecordDetailsAdapter creates a new record-details shape adapter
func NewRecordDetailsAdapter() *RecordDetailsAdapter {
	return &RecordDetailsAdapter{}
}

// Name returns the adapter name
func (a *RecordDetailsAdapter) Name() string {
	return "record_details"
}

// CanHandle recognizes the persisted-record layout
func (a *RecordDetailsAdapter) CanHandle(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if _, ok := payload["details"]; ok {
		return true
	}
	if _, ok := payload["target_url"]; ok {
		return true
	}
	return false
}

// Bundle converts a persisted-record details payload into the canonical bundle
func (a *RecordDetailsAdapter) Bundle(resultID string, payload map[string]any) model.EvidenceBundle {
	summary := childMap(payload, "summary")
	riskLevel := stringField(summary, "risk_level")
	if riskLevel == "" {
		riskLevel = string(model.RiskUnknown)
	}
	riskScore := ParseRiskScore(summary["risk_score"])

	targetURL := stringField(payload, "target_url")
	finalURL := stringField(payload, "final_url")
	extractedURL := targetURL
	if extractedURL == "" {
		extractedURL = finalURL
	}

	screenshot := childMap(payload, "screenshot")
	if screenshot == nil {
		screenshot = childMap(payload, "visual_snapshot_storage")
	}

	details := childMap(payload, "details")

	confidence := childMap(payload, "confidence")
	coverage := stringField(confidence, "analysis_coverage")
	if coverage == "" {
		coverage = string(model.CoverageUnknown)
	}

	return model.EvidenceBundle{
		RequestID:     resultID,
		ExtractedURL:  extractedURL,
		TargetURL:     targetURL,
		FinalURL:      finalURL,
		RiskLevel:     model.RiskLevel(riskLevel),
		RiskScore:     riskScore,
		Screenshot:    screenshot,
		RedirectChain: mapsField(details, "redirect_chain"),
		Evidence:      Evidence(details),
		Coverage:      model.Coverage(coverage),
		Limitations:   stringsField(confidence, "limitations"),
	}
}
