package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smishguard/explaind/internal/model"
)

// Known malicious-app download signals. Historical analyzer versions disagree
// on which one is authoritative, so both are checked.
var (
	installerExtensions = []string{".apk"}
	installerMIMETypes  = []string{"application/vnd.android.package-archive"}
)

// Evidence runs the deterministic rule table over the details section of an
// analysis payload. Rules are evaluated in fixed order and each contributes
// at most one item; absence of a signal contributes nothing. The function is
// total - malformed input yields fewer items, never an error.
func Evidence(details map[string]any) []model.EvidenceItem {
	var evidence []model.EvidenceItem

	download := childMap(details, "download_attempt")
	technical := childMap(details, "technical_findings")
	behavioral := childMap(details, "behavioral_findings")
	domain := childMap(details, "domain_analysis")
	cert := childMap(details, "certificate_analysis")

	if boolField(download, "attempted") && isInstallerDownload(download) {
		filename := stringField(download, "filename")
		if filename == "" {
			filename = "unknown"
		}
		evidence = append(evidence, model.EvidenceItem{
			Key:          "download_apk",
			Severity:     model.SeverityHigh,
			Message:      fmt.Sprintf("APK 파일 다운로드 시도가 감지되었습니다: %s", filename),
			WhyItMatters: "APK 설치는 악성 앱 설치로 이어질 수 있어 계정 탈취 위험이 큽니다.",
			UserAction:   "앱 설치나 다운로드는 즉시 중단하세요.",
		})
	}

	if boolField(technical, "credential_exfiltration") || boolField(behavioral, "external_post_on_input") {
		evidence = append(evidence, model.EvidenceItem{
			Key:          "credential_exfiltration",
			Severity:     model.SeverityHigh,
			Message:      "입력 정보를 외부로 전송하려는 동작이 감지되었습니다.",
			WhyItMatters: "아이디, 비밀번호, 인증번호가 공격자에게 전달될 수 있습니다.",
			UserAction:   "링크에서 로그인이나 개인정보 입력을 하지 마세요.",
		})
	}

	if boolField(behavioral, "keystroke_capture") {
		evidence = append(evidence, model.EvidenceItem{
			Key:          "keystroke_capture",
			Severity:     model.SeverityHigh,
			Message:      "키 입력을 수집하려는 스크립트가 감지되었습니다.",
			WhyItMatters: "입력 내용이 몰래 기록되어 탈취될 수 있습니다.",
			UserAction:   "입력창에 아무것도 입력하지 마세요.",
		})
	}

	if boolField(technical, "ui_deception") {
		evidence = append(evidence, model.EvidenceItem{
			Key:          "ui_deception",
			Severity:     model.SeverityMedium,
			Message:      "가짜 UI로 사용자를 속이려는 정황이 보입니다.",
			WhyItMatters: "공식 화면처럼 보이게 만들어 개인정보 입력을 유도할 수 있습니다.",
			UserAction:   "화면이 그럴듯해 보여도 믿지 말고 접속을 중단하세요.",
		})
	}

	if boolField(technical, "brand_impersonation") {
		evidence = append(evidence, model.EvidenceItem{
			Key:          "brand_impersonation",
			Severity:     model.SeverityMedium,
			Message:      "브랜드나 도메인 위장을 시도한 정황이 있습니다.",
			WhyItMatters: "공식 사이트처럼 보이게 만들어 사용자를 속일 수 있습니다.",
			UserAction:   "도메인을 꼼꼼히 확인하고 의심되면 접속을 중단하세요.",
		})
	}

	if ageDays, ok := numberField(domain, "domain_age_days"); ok && ageDays >= 0 && ageDays <= 7 {
		evidence = append(evidence, model.EvidenceItem{
			Key:          "new_domain",
			Severity:     model.SeverityMedium,
			Message:      fmt.Sprintf("도메인이 생성된 지 %d일로 매우 최근입니다.", int(ageDays)),
			WhyItMatters: "피싱 사이트는 짧게 만들고 빠르게 폐기하는 경우가 많습니다.",
			UserAction:   "로그인이나 인증 요구가 있으면 즉시 중단하세요.",
		})
	}

	if boolField(cert, "suspicious") {
		issuer := stringField(cert, "issuer")
		if issuer == "" {
			issuer = "unknown"
		}
		evidence = append(evidence, model.EvidenceItem{
			Key:          "cert_recent",
			Severity:     model.SeverityLow,
			Message:      fmt.Sprintf("TLS 인증서가 최근 발급된 것으로 보입니다. (issuer=%s)", issuer),
			WhyItMatters: "피싱 사이트에서도 흔히 보이는 특징이라 참고가 필요합니다.",
			UserAction:   "인증서만 믿지 말고 다른 위험 신호도 함께 보세요.",
		})
	}

	return evidence
}

// isInstallerDownload checks both historical signals: filename extension and
// declared content type.
func isInstallerDownload(download map[string]any) bool {
	filename := strings.ToLower(stringField(download, "filename"))
	for _, ext := range installerExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}

	mimeType := strings.ToLower(stringField(download, "mime_type"))
	for _, mt := range installerMIMETypes {
		if mimeType == mt {
			return true
		}
	}

	return false
}

// ParseRiskScore normalizes the authoritative risk score from whatever the
// producer wrote. Never fails: non-numeric input degrades to 0.
func ParseRiskScore(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
