package store

// FixtureID is the reserved identifier for the built-in demonstration record.
// Requests for it bypass the persistence layer entirely and are never
// persisted back to.
const FixtureID = "uuid"

// FixtureRecord returns the built-in analysis-log record used for
// demonstration and testing, or nil for any other identifier.
func FixtureRecord(id string) *Record {
	if id != FixtureID {
		return nil
	}
	return &Record{
		ResultID: FixtureID,
		Details:  fixtureLog(),
	}
}

// fixtureLog is a full analysis-log payload exercising every extraction rule.
// Values mirror a representative smishing capture.
func fixtureLog() map[string]any {
	return map[string]any{
		"request_id":   FixtureID,
		"user_id":      "userid",
		"submitted_at": "2026-01-06T09:32:11Z",
		"original_input": map[string]any{
			"raw_text":      "...",
			"extracted_url": "https://www.naver.com",
		},
		"summary": map[string]any{
			"risk_level": "HIGH",
			"risk_score": float64(87),
		},
		"visual_snapshot_storage": map[string]any{
			"provider": "s3",
			"bucket":   "screenshots",
			"key":      "snapshots/2026/01/abc123.png",
			"region":   "ap-northeast-2",
		},
		"result": map[string]any{
			"redirect_chain": []any{
				map[string]any{"type": "HTTP", "from": "http://bit.ly/xxx", "to": "https://example.com", "status": float64(302)},
				map[string]any{"type": "JS", "from": "https://example.com", "to": "https://secure-login-example.net"},
			},
			"download_attempt": map[string]any{
				"attempted":           true,
				"mime_type":           "application/vnd.android.package-archive",
				"filename":            "SecurityUpdate.apk",
				"content_disposition": "attachment",
				"auto_triggered":      true,
			},
			"technical_findings": map[string]any{
				"ui_deception":            true,
				"credential_exfiltration": true,
				"brand_impersonation":     true,
			},
			"behavioral_findings": map[string]any{
				"keystroke_capture":      true,
				"external_post_on_input": true,
				"eval_usage_count":       float64(12),
				"tab_control_script":     true,
			},
			"domain_analysis": map[string]any{"domain_age_days": float64(3)},
			"certificate_analysis": map[string]any{
				"issuer":          "Let's Encrypt",
				"issued_days_ago": float64(2),
				"domain_mismatch": false,
				"suspicious":      true,
			},
		},
		"confidence": map[string]any{
			"analysis_coverage": "PARTIAL",
			"limitations":       []any{"CAPTCHA", "OBFUSCATION"},
		},
	}
}
