package types

// Plan maps a public plan reference onto the processor price backing it.
type Plan struct {
	ID      string `json:"id" mapstructure:"id"`
	PriceID string `json:"price_id" mapstructure:"price_id"`
	Name    string `json:"name" mapstructure:"name"`
}
