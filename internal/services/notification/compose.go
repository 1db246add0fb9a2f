package notification

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"detectorx-worker-go/internal/models"
)

const analysisHeader = "🧠 AI Analysis & Safety Advice:"

// noAnalysisSentinels are placeholder texts that mean no analysis was produced.
// Compared trimmed and case-insensitively.
var noAnalysisSentinels = []string{
	"analysis unavailable.",
	"image file not found for analysis.",
	"analysis produced no usable output.",
	"analysis blocked.",
	"analisis gemini tidak tersedia.",
	"file gambar tidak ditemukan untuk analisis.",
	"analisis gemini tidak menghasilkan output yang diharapkan.",
	"analisis gemini diblokir.",
}

var blockedPrefixes = []string{"analysis blocked:", "analisis gemini ai diblokir:"}

// HasUsableAnalysis reports whether text should be shown to recipients
func HasUsableAnalysis(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, s := range noAnalysisSentinels {
		if t == s {
			return false
		}
	}
	for _, p := range blockedPrefixes {
		if strings.HasPrefix(t, p) {
			return false
		}
	}
	return true
}

// Compose renders the alert text shared by every channel
func Compose(msg models.AlertMessage, imageURL string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "🔥🚨 LIVE ALERT! Detected %s at %s from %s\n\n",
		capitalize(msg.DetectionType), msg.Location, msg.SourceInfo)
	fmt.Fprintf(&sb, "Confidence: %.2f\n", msg.Confidence)
	fmt.Fprintf(&sb, "Detection time: %s", msg.Timestamp)

	if imageURL != "" {
		fmt.Fprintf(&sb, "\n\n🖼️ Detection frame: %s", imageURL)
	}

	if HasUsableAnalysis(msg.AnalysisText) {
		fmt.Fprintf(&sb, "\n\n%s\n%s", analysisHeader, strings.TrimSpace(msg.AnalysisText))
	}

	return strings.TrimSpace(sb.String())
}

func capitalize(s string) string {
	if s == "" {
		return "Hazard"
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
