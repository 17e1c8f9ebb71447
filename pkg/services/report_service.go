package services

import (
	"strings"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/models"
)

// ReportSentinel はアシスタントの応答がレポート出力可能であることを示すマーカーです。表示前に必ず除去します。
const ReportSentinel = config.ReportMarker

const (
	defaultReportTitle = "BMS AI Report"
	titleLimit         = 50
)

// StripSentinel はレポートマーカーを除去します。
func StripSentinel(text string) string {
	if !strings.Contains(text, ReportSentinel) {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, ReportSentinel, ""))
}

// HasSentinel はテキストにレポートマーカーが含まれるかを返します。
func HasSentinel(text string) bool {
	return strings.Contains(text, ReportSentinel)
}

// ReportAttachment はマーカーを含む応答に付与する添付情報を返します。含まない場合はnilです。
func ReportAttachment(text string) *models.Attachment {
	if !HasSentinel(text) {
		return nil
	}
	title := defaultReportTitle
	if heading, ok := headingTitle(firstLine(StripSentinel(text))); ok {
		title = heading
	}
	return &models.Attachment{Type: "xlsx", Title: title}
}

// ExtractReport は対象メッセージから遡って直近の表を含むアシスタントメッセージを探し、レポートを抽出します。
// 対象メッセージが存在しない場合はfalseを返します。表がない場合は本文をそのまま要約として返します。
func ExtractReport(transcript []models.ChatMessage, targetID string) (models.ReportData, bool) {
	target := -1
	for i, m := range transcript {
		if m.ID == targetID {
			target = i
			break
		}
	}
	if target < 0 {
		return models.ReportData{}, false
	}

	matched := target
	for i := target; i >= 0; i-- {
		if transcript[i].Role == models.MessageRoleAssistant && hasTableRow(transcript[i].Content) {
			matched = i
			break
		}
	}

	report := ParseReport(transcript[matched].Content)
	if report.Title == "" {
		report.Title = titleFromPrecedingQuery(transcript, matched)
	}
	return report, true
}

// ParseReport は1件のメッセージを解析します。見出しがない場合Titleは空になります。
func ParseReport(content string) models.ReportData {
	lines := strings.Split(StripSentinel(content), "\n")
	report := models.ReportData{Headers: []string{}, Rows: [][]string{}}

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) {
		if title, ok := headingTitle(lines[start]); ok {
			report.Title = title
			start++
		}
	}

	var summary []string
	inTable := false
	afterHeader := false
	for _, raw := range lines[start:] {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "|") {
			switch {
			case !inTable:
				report.Headers = splitRow(line)
				inTable = true
				afterHeader = true
				continue
			case afterHeader && isSeparatorRow(line):
				// 区切り行はヘッダー直後の1行だけ
			default:
				report.Rows = append(report.Rows, splitRow(line))
			}
			afterHeader = false
			continue
		}
		if inTable {
			// 最初の表の終わり
			break
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		summary = append(summary, line)
	}

	if !inTable {
		report.Summary = strings.TrimSpace(strings.Join(lines[start:], "\n"))
		return report
	}
	report.Summary = strings.Join(summary, "\n")
	return report
}

func hasTableRow(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			return true
		}
	}
	return false
}

func headingTitle(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "**") {
		return "", false
	}
	title := strings.TrimSpace(strings.Trim(strings.TrimLeft(line, "#"), " *"))
	if title == "" {
		return "", false
	}
	return title, true
}

func titleFromPrecedingQuery(transcript []models.ChatMessage, from int) string {
	for i := from - 1; i >= 0; i-- {
		if transcript[i].Role != models.MessageRoleUser {
			continue
		}
		q := strings.TrimSpace(transcript[i].Content)
		if q == "" {
			break
		}
		if r := []rune(q); len(r) > titleLimit {
			return string(r[:titleLimit]) + "..."
		}
		return q
	}
	return defaultReportTitle
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func isSeparatorRow(line string) bool {
	return strings.Contains(line, "-") && strings.Trim(line, "|-: ") == ""
}
