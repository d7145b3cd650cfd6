package models

// ModelInfo describes one chat model offered by the gateway provider.
// Pricing is USD per million tokens.
type ModelInfo struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	ContextLength     int     `json:"context_length"`
	PricingPrompt     float64 `json:"pricing_prompt"`
	PricingCompletion float64 `json:"pricing_completion"`
}
