// Package generated holds typed fact structs for known payloads.
// Each struct converts itself into the flat fact map the engine evaluates.
package generated

import "github.com/liamcoop/ruleengine/rules"

// Transaction is a card payment as submitted for screening.
type Transaction struct {
	ID       string  `json:"transaction_id" yaml:"transaction_id"`
	Amount   int64   `json:"amount" yaml:"amount"`
	Currency string  `json:"currency" yaml:"currency"`
	Country  string  `json:"country" yaml:"country"`
	Category string  `json:"category" yaml:"category"`
	Risk     float64 `json:"risk,omitempty" yaml:"risk,omitempty"`

	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Facts flattens the transaction into engine facts.
// Optional fields are only present when set, so rules referencing them
// fail loudly on transactions that do not carry them.
func (t Transaction) Facts() map[string]rules.Value {
	facts := map[string]rules.Value{
		"amount":   rules.Int(t.Amount),
		"currency": rules.String(t.Currency),
		"country":  rules.String(t.Country),
		"category": rules.String(t.Category),
	}
	if t.ID != "" {
		facts["transaction_id"] = rules.String(t.ID)
	}
	if t.Risk != 0 {
		facts["risk"] = rules.Float(t.Risk)
	}
	if len(t.Tags) > 0 {
		tags := make(rules.List, len(t.Tags))
		for i, tag := range t.Tags {
			tags[i] = rules.String(tag)
		}
		facts["tags"] = tags
	}
	return facts
}

// DemoTransaction is the sample high-risk payment used by `rulectl demo`.
func DemoTransaction() Transaction {
	return Transaction{
		ID:       "txn12345",
		Amount:   15000,
		Currency: "USD",
		Country:  "high-risk-1",
		Category: "clothing",
	}
}
