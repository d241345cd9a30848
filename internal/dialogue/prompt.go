package dialogue

import (
	"fmt"
	"strings"

	"github.com/MrWong99/testcall/pkg/types"
)

// fallbackIntake is used when the configuration lists no questions.
const fallbackIntake = "No specific questions are configured. Collect, one at a time: " +
	"the caller's name, a phone number or email to reach them, what they need done, " +
	"when they would like it done, and the address or location of the job."

// BuildSystemPrompt renders the receptionist instructions for cfg. The output
// depends only on cfg.
func BuildSystemPrompt(cfg types.CallConfig) string {
	var b strings.Builder
	b.WriteString("You are the phone receptionist for a local service business, speaking with a caller on a live phone call.\n")
	if g := strings.TrimSpace(cfg.Greeting); g != "" {
		fmt.Fprintf(&b, "You have already greeted the caller with: %q\n", g)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Ask exactly one question per reply and wait for the answer.\n")
	b.WriteString("- Briefly acknowledge what the caller just said before asking the next question.\n")
	b.WriteString("- Keep every reply to one or two short sentences. This is spoken audio: no lists, no markdown, no emoji.\n")
	b.WriteString("- Never invent prices, availability or policies. Offer to have someone follow up instead.\n")
	b.WriteString("- When you have everything, confirm the details back in one sentence and say goodbye.\n")

	questions := nonEmpty(cfg.Questions)
	if len(questions) == 0 {
		b.WriteString("\n")
		b.WriteString(fallbackIntake)
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("\nWork through these questions in order, skipping any the caller has already answered:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return b.String()
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
