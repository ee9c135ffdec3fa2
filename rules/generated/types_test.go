package generated

import (
	"encoding/json"
	"testing"

	"github.com/liamcoop/ruleengine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransactionFacts verifies the fact map produced for a full transaction
func TestTransactionFacts(t *testing.T) {
	txn := Transaction{
		ID:       "t-1",
		Amount:   1500,
		Currency: "CAD",
		Country:  "CANADA",
		Category: "books",
		Risk:     0.4,
		Tags:     []string{"new-customer"},
	}

	want := rules.Map{
		"transaction_id": rules.String("t-1"),
		"amount":         rules.Int(1500),
		"currency":       rules.String("CAD"),
		"country":        rules.String("CANADA"),
		"category":       rules.String("books"),
		"risk":           rules.Float(0.4),
		"tags":           rules.List{rules.String("new-customer")},
	}
	assert.True(t, rules.Equal(want, rules.Map(txn.Facts())))
}

// TestTransactionFactsOmitsUnsetOptionals verifies optional fields stay absent
func TestTransactionFactsOmitsUnsetOptionals(t *testing.T) {
	facts := Transaction{Amount: 1, Currency: "USD"}.Facts()

	assert.NotContains(t, facts, "transaction_id")
	assert.NotContains(t, facts, "risk")
	assert.NotContains(t, facts, "tags")
	assert.Equal(t, rules.Int(1), facts["amount"])
}

func TestTransactionJSONTags(t *testing.T) {
	var txn Transaction
	require.NoError(t, json.Unmarshal([]byte(`{
		"transaction_id": "txn12345",
		"amount": 15000,
		"currency": "USD",
		"country": "high-risk-1",
		"category": "clothing"
	}`), &txn))

	assert.Equal(t, DemoTransaction(), txn)
}

// TestDemoTransactionIsHighRisk verifies the demo payment trips the high-risk condition
func TestDemoTransactionIsHighRisk(t *testing.T) {
	cond := rules.And{
		rules.GreaterThan{Field: "amount", Value: rules.Int(10000)},
		rules.Equals{Field: "currency", Value: rules.String("USD")},
		rules.Contains{Field: "country", Value: rules.String("high-risk")},
	}

	ok, err := rules.Evaluate(cond, DemoTransaction().Facts())
	require.NoError(t, err)
	assert.True(t, ok)
}
