package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = `You screen exchange and macro headlines for a short-term trading bot.
A headline is HIGH IMPACT when it can move prices sharply within the next hour:
central bank rate decisions, inflation or employment releases, sanctions,
trading halts, defaults, index rebalancing, or major corporate events of the traded instrument.
Routine notices (schedule changes, new listings, technical announcements) are not high impact.

Answer strictly in JSON:
{"high_impact": [0, 3], "reasoning": "short explanation"}

Use the zero-based numbers of the headlines. Return {"high_impact": []} when nothing qualifies.`

func BuildUserPrompt(symbol string, headlines []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Instrument: %s\n\n", symbol))
	sb.WriteString("Headlines:\n")
	for i, h := range headlines {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i, h))
	}
	sb.WriteString("\nWhich headlines are high impact?")

	return sb.String()
}
