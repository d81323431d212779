// Package prompt turns recipient descriptions into generation instructions
// and turns generated text back into discrete messages.
package prompt

import (
	"fmt"
	"strings"
)

// Recipient is the subset of a message that shapes what gets generated.
type Recipient struct {
	Name             string
	RelationshipRole string
	Personality      string
	Quirks           string
	Gender           string
}

// Instructions is one chat request: a system framing, a user framing and an
// output budget.
type Instructions struct {
	System    string
	User      string
	MaxTokens int
}

const (
	messageMaxTokens = 200
	premiumMaxTokens = 800
)

// Tones are assigned to premium variants in order, cycling if more are asked for.
var Tones = []string{"heartfelt", "funny", "inspirational", "warm", "celebratory"}

const messageSystem = `You write personalised birthday messages that are funny and warm at the same time.
Guidelines:
- keep the humour kind, never mean
- weave the recipient's personality and quirks in naturally
- sound like someone who knows them well
- use emojis sparingly
- keep it to a few sentences
Write one message they would want to screenshot and share.`

// MessageInstructions builds the request for the single free message.
func MessageInstructions(r Recipient) Instructions {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a funny, heartfelt birthday message for: %s\n", r.Name)
	fmt.Fprintf(&b, "Relationship to me: %s\n", r.RelationshipRole)
	fmt.Fprintf(&b, "Personality: %s", r.Personality)
	writeOptional(&b, "Quirks", r.Quirks)
	writeOptional(&b, "Gender", r.Gender)
	b.WriteString("\n\nMake it personal and memorable.")

	return Instructions{System: messageSystem, User: b.String(), MaxTokens: messageMaxTokens}
}

// PremiumInstructions asks for count variants as a numbered list, one per line.
// original is the free message, included so the variants do not repeat it.
func PremiumInstructions(r Recipient, original string, count int) Instructions {
	tones := make([]string, count)
	for i := range tones {
		tones[i] = Tones[i%len(Tones)]
	}

	system := fmt.Sprintf(`You write personalised birthday messages. Write %d different messages for the same person.
Each message must:
- differ from the others and from the original message
- be two or three sentences
- reference the recipient's characteristics
- use the tone assigned to its number: %s
Return only the messages as a numbered list, one per line, formatted "1. message".`,
		count, numberedTones(tones))

	var b strings.Builder
	fmt.Fprintf(&b, "Write %d birthday messages for: %s\n", count, r.Name)
	fmt.Fprintf(&b, "Relationship to me: %s\n", r.RelationshipRole)
	fmt.Fprintf(&b, "Personality: %s", r.Personality)
	writeOptional(&b, "Quirks", r.Quirks)
	writeOptional(&b, "Gender", r.Gender)
	if original != "" {
		fmt.Fprintf(&b, "\nOriginal message: %s", original)
	}

	return Instructions{System: system, User: b.String(), MaxTokens: premiumMaxTokens}
}

// FallbackMessage is stored when text generation fails and fallback is enabled.
func FallbackMessage(name string) string {
	return fmt.Sprintf("Happy Birthday %s! 🎉 Hope your special day is filled with joy, laughter, "+
		"and all your favorite things. You're absolutely wonderful and deserve the best celebration!", name)
}

func writeOptional(b *strings.Builder, label, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fmt.Fprintf(b, "\n%s: %s", label, v)
	}
}

func numberedTones(tones []string) string {
	parts := make([]string, len(tones))
	for i, t := range tones {
		parts[i] = fmt.Sprintf("%d=%s", i+1, t)
	}
	return strings.Join(parts, ", ")
}
