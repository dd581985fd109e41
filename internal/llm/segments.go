package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"emochat/internal/models"
)

// Segment is one emotion-tagged span of a model response.
type Segment struct {
	Content string `json:"content"`
	Emotion string `json:"emotion"`
}

type segmentsEnvelope struct {
	Segments []Segment `json:"segments"`
}

var (
	punctuationRe  = regexp.MustCompile(`([.!?])([A-Za-z0-9])`)
	segmentsJSONRe = regexp.MustCompile(`(?s)\{"segments":\s*\[.*?\]\s*\}`)
)

// RepairResponse cleans up common model output issues before parsing:
// duplicated JSON objects, and prose before or after the JSON body.
func RepairResponse(text string) string {
	if strings.Count(text, `{"segments"`) > 1 {
		start := strings.Index(text, `{"segments"`)
		if start != -1 {
			depth := 0
			for i := start; i < len(text); i++ {
				switch text[i] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						return text[start : i+1]
					}
				}
			}
		}
	}

	if first := strings.Index(text, "{"); first > 0 {
		text = text[first:]
	}
	if last := strings.LastIndex(text, "}"); last != -1 && last < len(text)-1 {
		text = text[:last+1]
	}
	return text
}

// FixPunctuationSpacing inserts a space after sentence punctuation
// that runs straight into the next word, e.g. "Paris.It" => "Paris. It".
func FixPunctuationSpacing(text string) string {
	return punctuationRe.ReplaceAllString(text, "$1 $2")
}

// ParseSegments parses cleaned response text into segments, trying a
// direct parse first, then extracting the first balanced JSON object,
// then a regex match as last resort.
func ParseSegments(text string) ([]Segment, error) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err == nil {
		segments, err := validateSchema(raw)
		if err != nil {
			// The text was valid JSON with the wrong shape. No
			// fallback will do better, so surface it.
			return nil, err
		}
		return segments, nil
	}

	if end := firstBalancedObjectEnd(text); end > 0 {
		var candidate any
		if err := json.Unmarshal([]byte(text[:end]), &candidate); err == nil {
			if segments, err := validateSchema(candidate); err == nil {
				return segments, nil
			}
		}
	}

	if match := segmentsJSONRe.FindString(text); match != "" {
		var candidate any
		if err := json.Unmarshal([]byte(match), &candidate); err == nil {
			if segments, err := validateSchema(candidate); err == nil {
				return segments, nil
			}
		}
	}

	preview := text
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return nil, fmt.Errorf("could not parse valid JSON with expected schema from response: %s...", preview)
}

func firstBalancedObjectEnd(text string) int {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func validateSchema(data any) ([]Segment, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response must be a JSON object")
	}
	rawSegments, ok := obj["segments"]
	if !ok {
		return nil, fmt.Errorf("missing required 'segments' key")
	}
	list, ok := rawSegments.([]any)
	if !ok {
		return nil, fmt.Errorf("'segments' must be an array")
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("'segments' array cannot be empty")
	}

	segments := make([]Segment, 0, len(list))
	for i, item := range list {
		seg, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("segment %d must be an object", i)
		}
		rawContent, ok := seg["content"]
		if !ok {
			return nil, fmt.Errorf("segment %d missing 'content' key", i)
		}
		rawEmotion, ok := seg["emotion"]
		if !ok {
			return nil, fmt.Errorf("segment %d missing 'emotion' key", i)
		}
		content, ok := rawContent.(string)
		if !ok {
			return nil, fmt.Errorf("segment %d 'content' must be a string", i)
		}
		emotion, ok := rawEmotion.(string)
		if !ok {
			return nil, fmt.Errorf("segment %d 'emotion' must be a string", i)
		}
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("segment %d 'content' cannot be empty", i)
		}
		segments = append(segments, Segment{Content: content, Emotion: emotion})
	}
	return segments, nil
}

// ParseResponse turns raw model output into the chunks sent to the
// client. It never fails: when the response cannot be parsed as
// segments, the raw text is delivered as a single neutral chunk with
// the parse error attached.
func ParseResponse(raw string) []models.ChatChunk {
	cleaned := RepairResponse(raw)
	cleaned = FixPunctuationSpacing(cleaned)

	segments, err := ParseSegments(cleaned)
	if err != nil {
		log.Printf("failed to validate model response: %v", err)
		chunk := models.NewChunk(raw, models.DefaultEmotion, true)
		chunk.Metadata = map[string]any{
			"error":        err.Error(),
			"raw_response": raw,
		}
		return []models.ChatChunk{chunk}
	}

	chunks := make([]models.ChatChunk, 0, len(segments))
	for i, seg := range segments {
		chunks = append(chunks, models.NewChunk(
			seg.Content,
			NormalizeEmotion(seg.Emotion),
			i == len(segments)-1,
		))
	}
	return chunks
}
