package extract

import "github.com/smishguard/explaind/internal/model"

// AnalysisLogAdapter handles the full analysis-log shape written by the
// analyzer itself: request_id / original_input / summary / result /
// confidence at the top level, findings nested under "result".
type AnalysisLogAdapter struct{}

// NewAnalysisLogAdapter creates a new analysis-log shape adapter
func NewAnalysisLogAdapter() *AnalysisLogAdapter {
	return &AnalysisLogAdapter{}
}

// Name returns the adapter name
func (a *AnalysisLogAdapter) Name() string {
	return "analysis_log"
}

// CanHandle recognizes the analysis-log layout by its distinctive keys
func (a *AnalysisLogAdapter) CanHandle(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if _, ok := payload["original_input"]; ok {
		return true
	}
	if _, ok := payload["result"]; ok {
		return true
	}
	return false
}

// Bundle converts an analysis log into the canonical bundle
func (a *AnalysisLogAdapter) Bundle(resultID string, payload map[string]any) model.EvidenceBundle {
	requestID := stringField(payload, "request_id")
	if requestID == "" {
		requestID = resultID
	}
	if requestID == "" {
		requestID = "unknown"
	}

	originalInput := childMap(payload, "original_input")
	extractedURL := stringField(originalInput, "extracted_url")
	rawText := stringField(originalInput, "raw_text")

	summary := childMap(payload, "summary")
	riskLevel := stringField(summary, "risk_level")
	if riskLevel == "" {
		riskLevel = string(model.RiskUnknown)
	}
	riskScore := ParseRiskScore(summary["risk_score"])

	result := childMap(payload, "result")

	confidence := childMap(payload, "confidence")
	coverage := stringField(confidence, "analysis_coverage")
	if coverage == "" {
		coverage = string(model.CoverageUnknown)
	}

	return model.EvidenceBundle{
		RequestID:     requestID,
		ExtractedURL:  extractedURL,
		TargetURL:     extractedURL,
		RawText:       rawText,
		RiskLevel:     model.RiskLevel(riskLevel),
		RiskScore:     riskScore,
		Screenshot:    childMap(payload, "visual_snapshot_storage"),
		RedirectChain: mapsField(result, "redirect_chain"),
		Evidence:      Evidence(result),
		Coverage:      model.Coverage(coverage),
		Limitations:   stringsField(confidence, "limitations"),
	}
}
