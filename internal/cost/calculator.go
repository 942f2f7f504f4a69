// Package cost computes the KRW billing of LLM token usage.
package cost

import "math"

// Rates holds per-token pricing in KRW.
type Rates struct {
	InputPerToken  float64 `yaml:"input_per_token" mapstructure:"input_per_token"`
	OutputPerToken float64 `yaml:"output_per_token" mapstructure:"output_per_token"`
}

// DefaultRates returns the HCX chat-completion pricing.
func DefaultRates() Rates {
	return Rates{
		InputPerToken:  0.00125,
		OutputPerToken: 0.005,
	}
}

// Calculator computes costs for completion calls.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion returns the cost of one call, rounded to 5 decimal places.
func (c *Calculator) Completion(inputTokens, outputTokens int) float64 {
	in := round(float64(inputTokens)*c.rates.InputPerToken, 10)
	out := round(float64(outputTokens)*c.rates.OutputPerToken, 10)
	return round(in+out, 5)
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
