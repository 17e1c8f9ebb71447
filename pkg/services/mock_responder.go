package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bms-chat-api/pkg/mockdb"
)

var (
	itemIDPattern   = regexp.MustCompile(`(?i)bms\d{4}`)
	orderIDPattern  = regexp.MustCompile(`(?i)ord-\d{2}-\d{4}`)
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hello|hi|hey|good (morning|afternoon|evening))\b`)
)

const (
	reportInstructionText = "You can download the **Inventory Report** from the **Reports** menu, or ask me to *generate a report* and use the download button on my reply."
	greetingText          = "Hello! I'm the BMS AI Assistant (offline mode). Ask me about inventory, orders, or market data."
	helpText              = `I didn't quite understand that query. I can help you with:
- **Inventory:** "Check stock for BMS0001"
- **Orders:** "Status of order ORD-24-1001"
- **Market:** "Compare price of BMS0001 vs Cummins"
- **Sales:** "Show sales analysis for BMS0001"

Try asking one of these or check the **Help & Guide** for more examples.`
	noMarketDataText = "I don't have specific market data on that topic yet. Try asking about 'engine market', 'competitor pricing', or 'supply chain'."
)

// intent はキーワード判定と応答生成の組です。handleがfalseを返すと次の意図へ進みます。
type intent struct {
	name   string
	match  func(lower string) bool
	handle func(query, lower string) (string, bool)
}

// MockResponder はネットワークを使わないルールベースの応答器です。
type MockResponder struct {
	store   *mockdb.Store
	latency time.Duration
	intents []intent
}

// NewMockResponder は新しいMockResponderを生成します。latencyは応答前の疑似待ち時間です。
func NewMockResponder(store *mockdb.Store, latency time.Duration) *MockResponder {
	r := &MockResponder{store: store, latency: latency}
	r.intents = []intent{
		{name: "inventory", match: containsAny("stock", "inventory", "available"), handle: r.inventory},
		{name: "order", match: func(lower string) bool {
			return containsAny("order", "status")(lower) || orderIDPattern.MatchString(lower)
		}, handle: r.order},
		{name: "market", match: containsAny("market", "competitor", "analysis", "price"), handle: r.market},
		{name: "report", match: containsAny("report", "pdf", "download"), handle: fixed(reportInstructionText)},
		{name: "greeting", match: greetingPattern.MatchString, handle: fixed(greetingText)},
	}
	return r
}

// Respond はクエリに対する応答を返します。待ち時間中にctxがキャンセルされた場合は待たずに応答します。
func (r *MockResponder) Respond(ctx context.Context, query string) string {
	if r.latency > 0 {
		timer := time.NewTimer(r.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	return r.Answer(query)
}

// Answer は待ち時間なしで応答を決定します。
func (r *MockResponder) Answer(query string) string {
	lower := strings.ToLower(query)
	for _, in := range r.intents {
		if !in.match(lower) {
			continue
		}
		if text, ok := in.handle(query, lower); ok {
			return text
		}
	}
	return helpText
}

func (r *MockResponder) inventory(_, lower string) (string, bool) {
	match := itemIDPattern.FindString(lower)
	if match == "" {
		return "Please specify an Item ID (e.g., BMS0001) to check inventory.", true
	}
	itemID := strings.ToUpper(match)
	item, ok := r.store.Item(itemID)
	if !ok {
		return fmt.Sprintf("I couldn't find an item with ID **%s**. Please check the ID and try again.", itemID), true
	}

	records := r.store.Inventory(itemID)
	rows := make([][]string, 0, len(records))
	total := 0
	for _, rec := range records {
		rows = append(rows, []string{rec.Location, strconv.Itoa(rec.Quantity)})
		total += rec.Quantity
	}
	return fmt.Sprintf("### Inventory Status: %s (%s)\n**Total Available:** %d units\n\n%s",
		item.Name, itemID, total, formatTable([]string{"Location", "Quantity"}, rows)), true
}

func (r *MockResponder) order(_, lower string) (string, bool) {
	if match := orderIDPattern.FindString(lower); match != "" {
		orderID := strings.ToUpper(match)
		o, ok := r.store.Order(orderID)
		if !ok {
			return fmt.Sprintf("I couldn't find order **%s**.", orderID), true
		}
		if strings.Contains(lower, "table") {
			return "### Order Details\n" + formatTable(
				[]string{"Order ID", "Item", "Status", "Date"},
				[][]string{{o.OrderID, o.ItemID, string(o.Status), o.Date}},
			), true
		}
		return fmt.Sprintf("### Order Status: %s\n- **Item:** %s\n- **Status:** %s\n- **Date:** %s\n- **Value:** $%s",
			orderID, o.ItemID, o.Status, o.Date, o.Value.String()), true
	}

	if strings.Contains(lower, "recent") || strings.Contains(lower, "list") {
		orders := r.store.Orders(mockdb.OrderFilter{Limit: recentOrderCount})
		rows := make([][]string, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, []string{o.OrderID, o.ItemID, string(o.Status), "$" + o.Value.String()})
		}
		return "### Recent Orders\n" + formatTable([]string{"Order ID", "Item", "Status", "Value"}, rows), true
	}
	return "", false
}

func (r *MockResponder) market(_, lower string) (string, bool) {
	var lines []string
	for _, doc := range r.store.KnowledgeBase() {
		for _, tag := range doc.Tags {
			if strings.Contains(lower, tag) {
				lines = append(lines, fmt.Sprintf("- **%s:** %s", doc.Title, doc.Content))
				break
			}
		}
	}
	if len(lines) == 0 {
		return noMarketDataText, true
	}
	summary := strings.Join(lines, "\n\n")

	if !strings.Contains(lower, "price") && !strings.Contains(lower, "competitor") {
		return "### Market Insights\n" + summary, true
	}

	items := r.store.Items()
	if len(items) > 5 {
		items = items[:5]
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		cummins, _ := item.CompetitorPriceFor("Cummins")
		cheapest, _ := item.CheapestCompetitor()
		rows = append(rows, []string{
			item.ID,
			"$" + item.Price.String(),
			"$" + cummins.StringFixed(2),
			fmt.Sprintf("%s ($%s)", cheapest.Name, cheapest.Price.StringFixed(2)),
		})
	}
	return fmt.Sprintf("### Market Analysis\n%s\n\n### Competitor Pricing Analysis\n%s",
		summary, formatTable([]string{"Item", "BMS Price", "Cummins Price", "Cheapest Competitor"}, rows)), true
}

// formatTable はMarkdownの表を生成します。
func formatTable(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("\n| " + strings.Join(headers, " | ") + " |\n")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	sb.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return sb.String()
}

func containsAny(keywords ...string) func(string) bool {
	return func(lower string) bool {
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}
}

func fixed(text string) func(string, string) (string, bool) {
	return func(string, string) (string, bool) { return text, true }
}
