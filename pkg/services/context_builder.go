package services

import (
	"fmt"
	"strings"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/mockdb"
	"bms-chat-api/pkg/models"
)

const recentOrderCount = 5

// customerOrderPlaceholder は顧客向けコンテキストで受注履歴の代わりに出力される行です。
const customerOrderPlaceholder = "- No order history is visible to this account."

// ContextBuilder はモックデータをシステムプロンプト用のテキストに変換します。
type ContextBuilder struct {
	store  *mockdb.Store
	prompt *config.AssistantPromptConfig
}

// NewContextBuilder は新しいContextBuilderを生成します。promptがnilなら埋め込みのデフォルトを使います。
func NewContextBuilder(store *mockdb.Store, prompt *config.AssistantPromptConfig) *ContextBuilder {
	if prompt == nil {
		prompt = config.MustDefaultAssistantPrompt()
	}
	return &ContextBuilder{store: store, prompt: prompt}
}

// Build は役割に応じたコンテキストを生成します。
// 顧客向けの秘匿はここで行い、モデル側の自己検閲には頼りません。
func (b *ContextBuilder) Build(role models.Role) string {
	customer := role == models.RoleCustomer

	var sb strings.Builder
	sb.WriteString(b.prompt.Intro())

	sb.WriteString("\n### Product Catalog & Pricing")
	if !customer {
		sb.WriteString(" (Benchmarked against Competitors)")
	}
	sb.WriteString("\n")
	b.writeCatalog(&sb, customer)

	sb.WriteString("\n### Current Inventory Levels\n")
	b.writeInventory(&sb, customer)

	sb.WriteString("\n### Historical Orders (Past Transactions - DO NOT confuse with current status)\n")
	b.writeOrders(&sb, customer)

	sb.WriteString("\n### Market Knowledge\n")
	b.writeKnowledge(&sb, customer)

	sb.WriteString("\n")
	sb.WriteString(b.prompt.BuildInstructions(customer))
	return sb.String()
}

func (b *ContextBuilder) writeCatalog(sb *strings.Builder, customer bool) {
	for _, item := range b.store.Items() {
		fmt.Fprintf(sb, "- %s: %s ($%s)", item.ID, item.Name, item.Price.String())
		if !customer && len(item.Competitors) > 0 {
			prices := make([]string, 0, len(item.Competitors))
			for _, c := range item.Competitors {
				prices = append(prices, fmt.Sprintf("%s: $%s", c.Name, c.Price.StringFixed(2)))
			}
			fmt.Fprintf(sb, " [%s]", strings.Join(prices, ", "))
		}
		sb.WriteString("\n")
	}
}

func (b *ContextBuilder) writeInventory(sb *strings.Builder, customer bool) {
	for _, item := range b.store.Items() {
		if customer {
			status := models.StatusOutOfStock
			if item.Stock > 0 {
				status = models.StatusInStock
			}
			fmt.Fprintf(sb, "- %s: %s\n", item.ID, status)
			continue
		}

		var alerts []string
		for _, rec := range b.store.Inventory(item.ID) {
			if rec.Status != models.StatusInStock {
				alerts = append(alerts, fmt.Sprintf("%s (%d)", rec.Location, rec.Quantity))
			}
		}
		fmt.Fprintf(sb, "- %s: %d units total.", item.ID, item.Stock)
		if len(alerts) > 0 {
			fmt.Fprintf(sb, " Alert: %s", strings.Join(alerts, ", "))
		}
		sb.WriteString("\n")
	}
}

func (b *ContextBuilder) writeOrders(sb *strings.Builder, customer bool) {
	if customer {
		sb.WriteString(customerOrderPlaceholder + "\n")
		return
	}
	for _, o := range b.store.Orders(mockdb.OrderFilter{Limit: recentOrderCount}) {
		fmt.Fprintf(sb, "- %s: %s (%s) - %s\n", o.OrderID, o.ItemID, o.Status, o.CustomerName)
	}
}

func (b *ContextBuilder) writeKnowledge(sb *strings.Builder, customer bool) {
	for _, doc := range b.store.KnowledgeBase() {
		if customer && mentionsCompetitor(doc.Title+" "+doc.Content, b.store.Competitors()) {
			continue
		}
		fmt.Fprintf(sb, "- %s: %s\n", doc.Title, doc.Content)
	}

	if customer {
		return
	}
	items := b.store.Items()
	if len(items) > 5 {
		items = items[:5]
	}
	for _, item := range items {
		if cheapest, ok := item.CheapestCompetitor(); ok {
			fmt.Fprintf(sb, "- %s: Strongest price pressure from %s ($%s).\n", item.ID, cheapest.Name, cheapest.Price.StringFixed(2))
		}
	}
}

func mentionsCompetitor(text string, competitors []string) bool {
	lower := strings.ToLower(text)
	for _, name := range competitors {
		if strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}
