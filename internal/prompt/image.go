package prompt

import (
	"regexp"
	"strings"
)

// Theme is one visual scene selected from the recipient's interests.
type Theme struct {
	Name     string
	Keywords []string
	// QuirksOnly themes are matched against quirks alone, others against
	// personality and quirks together.
	QuirksOnly bool
	Scene      string
}

// themes are checked in order; the first match wins.
var themes = []Theme{
	{
		Name:       "equestrian",
		Keywords:   []string{"horse", "riding", "equestrian", "rider"},
		QuirksOnly: true,
		Scene:      "a rustic western birthday scene with horseshoe decorations, cowboy boots holding wildflowers and a vintage saddle in the background, earth tones, leather and rope textures",
	},
	{
		Name:       "country",
		Keywords:   []string{"trailer", "country", "rustic"},
		QuirksOnly: true,
		Scene:      "a country birthday table with mason jar centrepieces, burlap and lace, wooden accents and wildflowers in a farmhouse style",
	},
	{
		Name:     "feline",
		Keywords: []string{"cat", "feline", "kitten"},
		Scene:    "an elegant birthday scene with subtle cat touches such as paw print confetti and graceful feline silhouettes",
	},
	{
		Name:     "horticultural",
		Keywords: []string{"garden", "flower", "plant"},
		Scene:    "a botanical birthday celebration with lush garden flowers, potted plants and natural greenery",
	},
	{
		Name:     "musical",
		Keywords: []string{"music", "sing", "instrument", "guitar", "piano"},
		Scene:    "a musical birthday theme with vintage instruments, sheet music garlands and musical note confetti",
	},
	{
		Name:     "artistic",
		Keywords: []string{"art", "paint", "creative", "draw"},
		Scene:    "an artist's studio birthday with paint palettes, brushes and bright splatters of colour",
	},
	{
		Name:     "coffee",
		Keywords: []string{"coffee", "cafe", "espresso", "latte"},
		Scene:    "a cosy cafe birthday with vintage cups, scattered coffee beans and warm lighting",
	},
	{
		Name:     "literary",
		Keywords: []string{"book", "read", "literature", "novel"},
		Scene:    "a literary birthday scene with stacked vintage books, reading glasses and a tall bookshelf behind",
	},
}

// ClassicTheme is used when nothing else matches.
var ClassicTheme = Theme{
	Name:  "classic",
	Scene: "a classic, elegant birthday celebration with refined decorations and tasteful colour coordination",
}

type styler struct {
	keywords []string
	style    string
}

// stylers are applied independently from the personality text.
var stylers = []styler{
	{keywords: []string{"funny", "humorous", "silly"}, style: "Add playful, whimsical elements and bright, cheerful colours."},
	{keywords: []string{"competitive", "passionate"}, style: "Use bold, energetic colours and a dynamic composition."},
	{keywords: []string{"stubborn", "strong"}, style: "Use strong, confident design elements with bold contrasts."},
}

const imageClosing = "Professional photography style, high resolution, soft lighting, birthday candles. No text or words in the image."

var wordStart = regexp.MustCompile(`[a-z]+`)

// containsKeyword matches keywords at the start of a word, so "painting"
// matches "paint" but "heart" does not match "art".
func containsKeyword(text string, keywords []string) bool {
	for _, word := range wordStart.FindAllString(strings.ToLower(text), -1) {
		for _, k := range keywords {
			if strings.HasPrefix(word, k) {
				return true
			}
		}
	}
	return false
}

// InferTheme picks the scene for a recipient.
func InferTheme(personality, quirks string) Theme {
	all := personality + " " + quirks
	for _, t := range themes {
		text := all
		if t.QuirksOnly {
			text = quirks
		}
		if containsKeyword(text, t.Keywords) {
			return t
		}
	}
	return ClassicTheme
}

// ImagePrompt builds the single image request for a recipient.
func ImagePrompt(r Recipient) string {
	theme := InferTheme(r.Personality, r.Quirks)

	var b strings.Builder
	b.WriteString("Create a sophisticated birthday celebration image featuring ")
	b.WriteString(theme.Scene)
	b.WriteString(". ")
	for _, s := range stylers {
		if containsKeyword(r.Personality, s.keywords) {
			b.WriteString(s.style)
			b.WriteString(" ")
		}
	}
	b.WriteString(imageClosing)
	return b.String()
}
