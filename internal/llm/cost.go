package llm

// USD per 1K tokens: [input, output].
var costPerToken = map[string][2]float64{
	"gpt-4o":       {0.0025, 0.01},
	"gpt-4o-mini":  {0.00015, 0.0006},
	"gpt-4.1-mini": {0.0004, 0.0016},

	"claude-3-5-haiku-latest":  {0.0008, 0.004},
	"claude-sonnet-4-20250514": {0.003, 0.015},
}

// CalculateCost returns the USD cost of a call, or 0 for unpriced models.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*prices[0] + float64(outputTokens)/1000.0*prices[1]
}
