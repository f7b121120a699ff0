package extract

import (
	"strings"
	"testing"

	"github.com/smishguard/explaind/internal/model"
)

func evidenceKeys(items []model.EvidenceItem) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}

func hasKey(items []model.EvidenceItem, key string) bool {
	for _, item := range items {
		if item.Key == key {
			return true
		}
	}
	return false
}

func findItem(t *testing.T, items []model.EvidenceItem, key string) model.EvidenceItem {
	t.Helper()
	for _, item := range items {
		if item.Key == key {
			return item
		}
	}
	t.Fatalf("Expected evidence item %q, got %v", key, evidenceKeys(items))
	return model.EvidenceItem{}
}

func TestEvidence_EmptyDetails(t *testing.T) {
	if items := Evidence(nil); len(items) != 0 {
		t.Errorf("Expected no evidence for nil details, got %v", evidenceKeys(items))
	}
	if items := Evidence(map[string]any{}); len(items) != 0 {
		t.Errorf("Expected no evidence for empty details, got %v", evidenceKeys(items))
	}
}

func TestEvidence_DownloadAPK_ByFilename(t *testing.T) {
	details := map[string]any{
		"download_attempt": map[string]any{
			"attempted": true,
			"filename":  "SecurityUpdate.APK",
		},
	}

	items := Evidence(details)
	item := findItem(t, items, "download_apk")

	if item.Severity != model.SeverityHigh {
		t.Errorf("Expected HIGH severity, got %s", item.Severity)
	}
	if !strings.Contains(item.Message, "SecurityUpdate.APK") {
		t.Errorf("Expected filename in message, got %q", item.Message)
	}
}

func TestEvidence_DownloadAPK_ByMIMEType(t *testing.T) {
	// Older payloads carry only the content type
	details := map[string]any{
		"download_attempt": map[string]any{
			"attempted": true,
			"mime_type": "application/vnd.android.package-archive",
		},
	}

	items := Evidence(details)
	item := findItem(t, items, "download_apk")

	if !strings.Contains(item.Message, "unknown") {
		t.Errorf("Expected filename fallback in message, got %q", item.Message)
	}
}

func TestEvidence_DownloadAPK_NotAttempted(t *testing.T) {
	details := map[string]any{
		"download_attempt": map[string]any{
			"attempted": false,
			"filename":  "SecurityUpdate.apk",
			"mime_type": "application/vnd.android.package-archive",
		},
	}

	if items := Evidence(details); hasKey(items, "download_apk") {
		t.Error("download_apk should not fire when no download was attempted")
	}
}

func TestEvidence_DownloadAPK_HarmlessFile(t *testing.T) {
	details := map[string]any{
		"download_attempt": map[string]any{
			"attempted": true,
			"filename":  "invoice.pdf",
			"mime_type": "application/pdf",
		},
	}

	if items := Evidence(details); hasKey(items, "download_apk") {
		t.Error("download_apk should not fire for a non-installer download")
	}
}

func TestEvidence_CredentialExfiltration_EitherSignal(t *testing.T) {
	technical := map[string]any{
		"technical_findings": map[string]any{"credential_exfiltration": true},
	}
	if items := Evidence(technical); !hasKey(items, "credential_exfiltration") {
		t.Error("credential_exfiltration should fire on the technical signal")
	}

	behavioral := map[string]any{
		"behavioral_findings": map[string]any{"external_post_on_input": true},
	}
	if items := Evidence(behavioral); !hasKey(items, "credential_exfiltration") {
		t.Error("credential_exfiltration should fire on the behavioral signal")
	}
}

// Each flag toggles exactly its own item, independent of the others
func TestEvidence_SingleSignalToggles(t *testing.T) {
	tests := []struct {
		name    string
		details map[string]any
		key     string
	}{
		{
			name:    "keystroke_capture",
			details: map[string]any{"behavioral_findings": map[string]any{"keystroke_capture": true}},
			key:     "keystroke_capture",
		},
		{
			name:    "ui_deception",
			details: map[string]any{"technical_findings": map[string]any{"ui_deception": true}},
			key:     "ui_deception",
		},
		{
			name:    "brand_impersonation",
			details: map[string]any{"technical_findings": map[string]any{"brand_impersonation": true}},
			key:     "brand_impersonation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Evidence(tt.details)
			if len(items) != 1 {
				t.Fatalf("Expected exactly 1 item, got %v", evidenceKeys(items))
			}
			if items[0].Key != tt.key {
				t.Errorf("Expected %q, got %q", tt.key, items[0].Key)
			}
		})
	}
}

func TestEvidence_NewDomain_Boundaries(t *testing.T) {
	tests := []struct {
		name  string
		age   any
		fires bool
	}{
		{"zero days", float64(0), true},
		{"three days", float64(3), true},
		{"exactly seven", float64(7), true},
		{"eight days", float64(8), false},
		{"negative", float64(-1), false},
		{"very negative", float64(-3), false},
		{"numeric string", "5", false},
		{"non-numeric", "recent", false},
		{"absent", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain := map[string]any{}
			if tt.age != nil {
				domain["domain_age_days"] = tt.age
			}
			items := Evidence(map[string]any{"domain_analysis": domain})
			if hasKey(items, "new_domain") != tt.fires {
				t.Errorf("new_domain fired=%v, want %v for age %v", !tt.fires, tt.fires, tt.age)
			}
		})
	}
}

func TestEvidence_NewDomain_TruncatesAge(t *testing.T) {
	items := Evidence(map[string]any{
		"domain_analysis": map[string]any{"domain_age_days": 3.9},
	})
	item := findItem(t, items, "new_domain")

	if !strings.Contains(item.Message, "3일") {
		t.Errorf("Expected truncated day count 3 in message, got %q", item.Message)
	}
}

func TestEvidence_CertRecent_IssuerFallback(t *testing.T) {
	withIssuer := Evidence(map[string]any{
		"certificate_analysis": map[string]any{"suspicious": true, "issuer": "Let's Encrypt"},
	})
	if item := findItem(t, withIssuer, "cert_recent"); !strings.Contains(item.Message, "Let's Encrypt") {
		t.Errorf("Expected issuer in message, got %q", item.Message)
	}

	withoutIssuer := Evidence(map[string]any{
		"certificate_analysis": map[string]any{"suspicious": true},
	})
	if item := findItem(t, withoutIssuer, "cert_recent"); !strings.Contains(item.Message, "unknown") {
		t.Errorf("Expected issuer fallback, got %q", item.Message)
	}

	if item := findItem(t, withoutIssuer, "cert_recent"); item.Severity != model.SeverityLow {
		t.Errorf("Expected LOW severity, got %s", item.Severity)
	}
}

func TestEvidence_RuleOrderIsStable(t *testing.T) {
	details := map[string]any{
		"download_attempt":     map[string]any{"attempted": true, "filename": "a.apk"},
		"technical_findings":   map[string]any{"ui_deception": true, "brand_impersonation": true, "credential_exfiltration": true},
		"behavioral_findings":  map[string]any{"keystroke_capture": true},
		"domain_analysis":      map[string]any{"domain_age_days": float64(2)},
		"certificate_analysis": map[string]any{"suspicious": true},
	}

	want := []string{
		"download_apk",
		"credential_exfiltration",
		"keystroke_capture",
		"ui_deception",
		"brand_impersonation",
		"new_domain",
		"cert_recent",
	}

	got := evidenceKeys(Evidence(details))
	if len(got) != len(want) {
		t.Fatalf("Expected %d items, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestParseRiskScore(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{float64(87), 87},
		{"42.5", 42.5},
		{"not a number", 0},
		{nil, 0},
		{true, 0},
	}

	for _, tt := range tests {
		if got := ParseRiskScore(tt.in); got != tt.want {
			t.Errorf("ParseRiskScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
