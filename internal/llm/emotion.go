package llm

import "strings"

// Emotions the client renderer understands. Anything else the model
// produces gets mapped here or dropped to neutral.
var allowedEmotions = map[string]struct{}{
	"neutral":    {},
	"happy":      {},
	"excited":    {},
	"thoughtful": {},
	"curious":    {},
	"confident":  {},
	"concerned":  {},
	"empathetic": {},
}

var emotionSynonyms = map[string]string{
	"sad":          "concerned",
	"worried":      "concerned",
	"negative":     "concerned",
	"enthusiastic": "excited",
	"analytical":   "thoughtful",
	"questioning":  "curious",
	"supportive":   "empathetic",
	"caring":       "empathetic",
	"positive":     "happy",
}

// NormalizeEmotion maps a model-produced emotion label onto the
// closed set the client supports, defaulting to neutral.
func NormalizeEmotion(emotion string) string {
	e := strings.ToLower(strings.TrimSpace(emotion))
	if e == "" {
		return "neutral"
	}
	if _, ok := allowedEmotions[e]; ok {
		return e
	}
	if mapped, ok := emotionSynonyms[e]; ok {
		return mapped
	}
	return "neutral"
}
