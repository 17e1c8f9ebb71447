package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"bms-chat-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func msg(id string, role models.MessageRole, content string) models.ChatMessage {
	return models.ChatMessage{ID: id, Role: role, Content: content, Timestamp: testNow}
}

func TestExtractReportBasicTable(t *testing.T) {
	transcript := []models.ChatMessage{
		msg("a1", models.MessageRoleAssistant, "Report\n|A|B|\n|---|---|\n|1|2|\n<<GENERATE_REPORT>>"),
	}

	report, ok := ExtractReport(transcript, "a1")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, report.Headers)
	assert.Equal(t, [][]string{{"1", "2"}}, report.Rows)
	assert.Equal(t, "Report", report.Summary)
	assert.NotContains(t, report.Summary, ReportSentinel)
	assert.Equal(t, defaultReportTitle, report.Title)
}

func TestExtractReportTitleFromHeading(t *testing.T) {
	content := "### Inventory Overview\nStock is healthy.\n\n| Item | Qty |\n|---|---|\n| BMS0001 | 10 |\n| BMS0002 | 20 |\n\n- Key finding\n" + ReportSentinel
	transcript := []models.ChatMessage{
		msg("u1", models.MessageRoleUser, "generate a report"),
		msg("a1", models.MessageRoleAssistant, content),
	}

	report, ok := ExtractReport(transcript, "a1")
	require.True(t, ok)
	assert.Equal(t, "Inventory Overview", report.Title)
	assert.Equal(t, "Stock is healthy.", report.Summary)
	assert.Equal(t, []string{"Item", "Qty"}, report.Headers)
	assert.Equal(t, [][]string{{"BMS0001", "10"}, {"BMS0002", "20"}}, report.Rows)

	bold, _ := ExtractReport([]models.ChatMessage{msg("a", models.MessageRoleAssistant, "**Sales Summary**\n|X|\n|-|\n|1|")}, "a")
	assert.Equal(t, "Sales Summary", bold.Title)
}

func TestExtractReportTitleFromPrecedingQuery(t *testing.T) {
	long := strings.Repeat("x", 60)
	transcript := []models.ChatMessage{
		msg("u1", models.MessageRoleUser, long),
		msg("a1", models.MessageRoleAssistant, "Here you go\n|A|\n|---|\n|1|"),
	}
	report, _ := ExtractReport(transcript, "a1")
	assert.Equal(t, strings.Repeat("x", 50)+"...", report.Title)

	transcript[0].Content = "short question"
	report, _ = ExtractReport(transcript, "a1")
	assert.Equal(t, "short question", report.Title)
}

func TestExtractReportSearchesBackwardForTable(t *testing.T) {
	transcript := []models.ChatMessage{
		msg("u1", models.MessageRoleUser, "list recent orders"),
		msg("a1", models.MessageRoleAssistant, "### Recent Orders\n| Order ID | Status |\n| --- | --- |\n| ORD-24-1000 | Shipped |"),
		msg("u2", models.MessageRoleUser, "now generate a report"),
		msg("a2", models.MessageRoleAssistant, "Report ready. "+ReportSentinel),
	}

	report, ok := ExtractReport(transcript, "a2")
	require.True(t, ok)
	assert.Equal(t, "Recent Orders", report.Title)
	assert.Equal(t, [][]string{{"ORD-24-1000", "Shipped"}}, report.Rows)
}

func TestExtractReportWithoutTable(t *testing.T) {
	transcript := []models.ChatMessage{
		msg("u1", models.MessageRoleUser, "summarise"),
		msg("a1", models.MessageRoleAssistant, "Plain answer.\nSecond line. "+ReportSentinel),
	}
	report, ok := ExtractReport(transcript, "a1")
	require.True(t, ok)
	assert.Empty(t, report.Headers)
	assert.Empty(t, report.Rows)
	assert.Equal(t, "Plain answer.\nSecond line.", report.Summary)
	assert.Equal(t, "summarise", report.Title)

	_, ok = ExtractReport(transcript, "missing")
	assert.False(t, ok)
}

func TestParseReportKeepsPlaceholderRows(t *testing.T) {
	report := ParseReport("### Stock\n| Item | Note |\n|---|:---:|\n| BMS0001 | ok |\n| - | - |\n| | |\n| BMS0003 | ok |")

	assert.Equal(t, []string{"Item", "Note"}, report.Headers)
	assert.Equal(t, [][]string{
		{"BMS0001", "ok"},
		{"-", "-"},
		{"", ""},
		{"BMS0003", "ok"},
	}, report.Rows)
}

func TestParseReportWithoutSeparatorRow(t *testing.T) {
	report := ParseReport("| Item | Qty |\n| BMS0001 | 5 |")

	assert.Equal(t, []string{"Item", "Qty"}, report.Headers)
	assert.Equal(t, [][]string{{"BMS0001", "5"}}, report.Rows)
}

func TestStripSentinelAndAttachment(t *testing.T) {
	assert.Equal(t, "done", StripSentinel("done\n"+ReportSentinel))
	assert.Equal(t, "untouched ", StripSentinel("untouched "))

	assert.Nil(t, ReportAttachment("no marker"))
	att := ReportAttachment("## Stock Report\n|A|\n" + ReportSentinel)
	require.NotNil(t, att)
	assert.Equal(t, "xlsx", att.Type)
	assert.Equal(t, "Stock Report", att.Title)
}

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	return rows
}

func TestWriteReportWorkbook(t *testing.T) {
	var buf bytes.Buffer
	err := NewReportExporter(newTestStore()).WriteReport(&buf, models.ReportData{
		Title:   "Stock Report",
		Summary: "Two items " + ReportSentinel,
		Headers: []string{"Item", "Qty"},
		Rows:    [][]string{{"BMS0001", "10"}},
	})
	require.NoError(t, err)

	rows := readSheet(t, buf.Bytes())
	require.GreaterOrEqual(t, len(rows), 5)
	assert.Equal(t, "Stock Report", rows[0][0])
	assert.Equal(t, "Two items", rows[1][0])
	assert.Equal(t, []string{"Item", "Qty"}, rows[3])
	assert.Equal(t, []string{"BMS0001", "10"}, rows[4])
}

func TestWriteDashboardReports(t *testing.T) {
	store := newTestStore()
	exporter := NewReportExporter(store)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var inv bytes.Buffer
	require.NoError(t, exporter.WriteInventoryReport(&inv, now))
	rows := readSheet(t, inv.Bytes())
	assert.Equal(t, "BMS Inventory Report", rows[0][0])
	assert.Equal(t, "Generated on: 2024-06-01", rows[1][0])
	assert.Equal(t, InventoryReportHeaders, rows[3])
	assert.Len(t, rows, tableStartRow+len(store.AllInventory()))

	var sales bytes.Buffer
	require.NoError(t, exporter.WriteSalesReport(&sales, now))
	rows = readSheet(t, sales.Bytes())
	assert.Equal(t, SalesReportHeaders, rows[3])
	assert.Len(t, rows, tableStartRow+len(store.AllForecasts()))
	assert.Equal(t, "BMS0001", rows[4][0])
	assert.True(t, strings.HasSuffix(rows[4][5], "%"))
}
