package services

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"bms-chat-api/pkg/mockdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableRows はMarkdownの表からヘッダーと区切り行を除いたセルを返します。
func tableRows(text string) [][]string {
	var rows [][]string
	seenHeader := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			continue
		}
		if !seenHeader {
			seenHeader = true
			continue
		}
		if strings.Contains(line, "---") {
			continue
		}
		var cells []string
		for _, c := range strings.Split(strings.Trim(line, "|"), "|") {
			cells = append(cells, strings.TrimSpace(c))
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestMockResponderInventory(t *testing.T) {
	store := newTestStore()
	r := NewMockResponder(store, 0)

	answer := r.Answer("Check stock for BMS0001")
	assert.Contains(t, answer, "BMS0001")

	item, ok := store.Item("BMS0001")
	require.True(t, ok)

	sum := 0
	rows := tableRows(answer)
	assert.Len(t, rows, len(store.Inventory("BMS0001")))
	for _, row := range rows {
		require.Len(t, row, 2)
		qty, err := strconv.Atoi(row[1])
		require.NoError(t, err)
		sum += qty
	}
	assert.Equal(t, item.Stock, sum)
	assert.Contains(t, answer, "**Total Available:** "+strconv.Itoa(item.Stock)+" units")
}

func TestMockResponderInventoryEdgeCases(t *testing.T) {
	r := NewMockResponder(newTestStore(), 0)

	assert.Contains(t, r.Answer("what is in stock?"), "Please specify an Item ID")
	assert.Contains(t, r.Answer("inventory for bms9999"), "couldn't find an item with ID **BMS9999**")
}

func TestMockResponderOrders(t *testing.T) {
	store := newTestStore()
	r := NewMockResponder(store, 0)

	missing := r.Answer("ORD-99-9999")
	assert.Contains(t, missing, "couldn't find order **ORD-99-9999**")

	existing := store.Orders(mockdb.OrderFilter{Limit: 1})[0]
	answer := r.Answer("What is the status of " + strings.ToLower(existing.OrderID) + "?")
	assert.Contains(t, answer, "### Order Status: "+existing.OrderID)
	assert.Contains(t, answer, string(existing.Status))
	assert.Contains(t, answer, "$"+existing.Value.String())

	table := r.Answer("show order " + existing.OrderID + " as a table")
	assert.Equal(t, [][]string{{existing.OrderID, existing.ItemID, string(existing.Status), existing.Date}}, tableRows(table))

	recent := r.Answer("list recent orders")
	assert.Contains(t, recent, "### Recent Orders")
	assert.Len(t, tableRows(recent), 5)
}

func TestMockResponderMarket(t *testing.T) {
	r := NewMockResponder(newTestStore(), 0)

	insights := r.Answer("Tell me about the engine market")
	assert.Contains(t, insights, "### Market Insights")
	assert.Contains(t, insights, "Heavy Duty Engine Market Analysis 2024")

	pricing := r.Answer("competitor pricing overview")
	assert.Contains(t, pricing, "### Competitor Pricing Analysis")
	assert.Len(t, tableRows(pricing), 5)

	assert.Equal(t, noMarketDataText, r.Answer("price of gold"))
}

func TestMockResponderFixedAnswers(t *testing.T) {
	r := NewMockResponder(newTestStore(), 0)

	assert.Equal(t, reportInstructionText, r.Answer("Download PDF please"))
	assert.Equal(t, greetingText, r.Answer("Hello there"))
	assert.Equal(t, helpText, r.Answer("what's the weather like?"))
	// "order"を含むがIDもrecent/listもない場合は後続の意図へ進む
	assert.Equal(t, helpText, r.Answer("I want to order"))
}

func TestMockResponderLatencyHonorsContext(t *testing.T) {
	r := NewMockResponder(newTestStore(), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	answer := r.Respond(ctx, "hi")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, greetingText, answer)
}
