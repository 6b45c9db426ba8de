package reasoning

import (
	"context"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwatch/cartwatch-go/internal/cart"
	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/deals"
)

func testSettings() conf.ReasoningSettings {
	return conf.ReasoningSettings{
		Endpoint:         "https://reasoning.test/v1/generate",
		APIKey:           "test-key",
		Model:            "grocery-reasoning-lite",
		Timeout:          5 * time.Second,
		FuzzyMatchWindow: 10 * time.Second,
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(testSettings())
	require.NoError(t, err)
	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(conf.ReasoningSettings{})
	assert.Error(t, err)
}

func TestClientClose(t *testing.T) {
	client, err := NewClient(testSettings())
	require.NoError(t, err)
	assert.NotPanics(t, client.Close)
}

func TestCheckDuplicatePositiveVerdict(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(200,
			`{"is_duplicate": true, "similar_item": "Coca-Cola Can", "time_diff": 3.2, "reason": "same product, different angle"}`))

	now := time.Date(2025, 3, 14, 10, 0, 10, 0, time.UTC)
	items := []cart.Item{
		{Name: "Coca-Cola Can", Brand: "Coca-Cola", Category: "beverage", LastSeen: now.Add(-3 * time.Second)},
	}

	verdict := client.CheckDuplicate(context.Background(),
		Candidate{Name: "Coke 12oz", Brand: "Coca-Cola", Category: "beverage"}, items, now)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, "Coca-Cola Can", verdict.SimilarItem)
	assert.InDelta(t, 3.2, verdict.TimeDiff, 0.001)
}

func TestCheckDuplicateFencedResponse(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(200,
			"```json\n{\"is_duplicate\": false, \"similar_item\": \"\", \"time_diff\": 0, \"reason\": \"new product\"}\n```"))

	verdict := client.CheckDuplicate(context.Background(),
		Candidate{Name: "Pringles", Brand: "Pringles", Category: "snack"}, nil, time.Now())

	assert.False(t, verdict.IsDuplicate)
	assert.Equal(t, "new product", verdict.Reason)
}

func TestCheckDuplicateFailsOpenOnServerError(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(503, "unavailable"))

	verdict := client.CheckDuplicate(context.Background(),
		Candidate{Name: "Ensure Shake", Brand: "Ensure", Category: "beverage"}, nil, time.Now())

	assert.False(t, verdict.IsDuplicate, "service failure must not block a cart add")
}

func TestCheckDuplicateFailsOpenOnGarbage(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(200, "I think they might be the same item."))

	verdict := client.CheckDuplicate(context.Background(),
		Candidate{Name: "Ensure Shake", Brand: "Ensure", Category: "beverage"}, nil, time.Now())

	assert.False(t, verdict.IsDuplicate)
}

func TestAnalyzeDeals(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(200,
			`{"best_deal_message": "The best deal for Pringles is $1.75 at Dollar General.", "alternative_message": "You might also consider Lay's Stax for $1.50 at Walmart, which offers a similar crunch for less."}`))

	analysis, err := client.AnalyzeDeals(context.Background(),
		Candidate{Name: "Pringles Original", Brand: "Pringles", Category: "snack"},
		[]deals.Deal{
			{Title: "Pringles Original 5.2oz", Price: "$1.75", Store: "Dollar General"},
			{Title: "Lay's Stax", Price: "$1.50", Store: "Walmart"},
		})

	require.NoError(t, err)
	assert.Contains(t, analysis.BestDealMessage, "$1.75")
	assert.Contains(t, analysis.AlternativeMessage, "Lay's Stax")
}

func TestAnalyzeDealsFillsMissingMessages(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(200,
			`{"best_deal_message": "The best deal for Coke is $1.35 at Dollar General."}`))

	analysis, err := client.AnalyzeDeals(context.Background(),
		Candidate{Name: "Coke", Brand: "Coca-Cola", Category: "beverage"},
		[]deals.Deal{{Title: "Coca-Cola 12oz", Price: "$1.35", Store: "Dollar General"}})

	require.NoError(t, err)
	assert.Equal(t, "No alternatives found", analysis.AlternativeMessage)
}

func TestAnalyzeDealsRejectsEmptyList(t *testing.T) {
	client := newTestClient(t)

	_, err := client.AnalyzeDeals(context.Background(),
		Candidate{Name: "Coke", Brand: "Coca-Cola", Category: "beverage"}, nil)
	assert.Error(t, err)
}

func TestAnalyzeDealsErrorsOnGarbage(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", "https://reasoning.test/v1/generate",
		httpmock.NewStringResponder(200, "no structured answer here"))

	_, err := client.AnalyzeDeals(context.Background(),
		Candidate{Name: "Coke", Brand: "Coca-Cola", Category: "beverage"},
		[]deals.Deal{{Title: "Coca-Cola 12oz", Price: "$1.35", Store: "Dollar General"}})
	assert.Error(t, err)
}
