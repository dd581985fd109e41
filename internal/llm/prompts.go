package llm

import (
	"fmt"
	"strings"

	"emochat/internal/models"
)

// BaseSystemPrompt instructs the model to answer as emotion-tagged
// JSON segments. The admin API can replace the persona line, but the
// format instructions below must survive any replacement for the
// segment parser to work.
const BaseSystemPrompt = `You are a warm, attentive AI assistant. Please structure your response as a JSON object with the following format:

{
  "segments": [
    {
      "content": "The actual text content for this segment",
      "emotion": "emotion_indicator"
    }
  ]
}

Break your response into logical segments (sentences or paragraphs) and assign each segment an appropriate emotion from this list:
- neutral: Standard informational content
- happy: Positive, encouraging, or celebratory content
- excited: Enthusiastic, energetic responses
- thoughtful: Analytical, contemplative content
- curious: Questioning, exploring ideas
- confident: Assertive, certain statements
- concerned: Addressing problems or warnings
- empathetic: Understanding, supportive content

Each segment should be a complete thought or sentence. Aim for 2-5 segments per response depending on content length.

CRITICAL REQUIREMENTS:
- Your entire response must be valid JSON
- Output EXACTLY ONE JSON object
- Only use an emotion from the provided list
- Do not repeat or duplicate the JSON structure
- Do not include any text outside the JSON structure
- Start with { and end with }.`

const newSummaryPrompt = `Please provide a concise summary of this conversation in 2-3 sentences, focusing on:
- Main topics discussed
- Key decisions or conclusions
- Important context for future reference

Conversation:
%s

Summary:`

const updateSummaryPrompt = `You are tasked with updating a conversation summary. You have:

1. Previous summary of earlier parts of the conversation:
%s

2. Recent conversation messages to incorporate:
%s

Please provide an updated summary that:
- Incorporates the key points from the previous summary
- Adds important new information from the recent messages
- Maintains continuity and context
- Stays concise (3-4 sentences max)
- Focuses on main topics, decisions, and ongoing themes

Updated Summary:`

// SummaryPrompt renders the summarization request for a window of
// conversation messages, folding in the previous summary if any.
func SummaryPrompt(messages []PromptMessage, previousSummary string) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	conversationText := strings.Join(lines, "\n")

	if previousSummary == "" {
		return fmt.Sprintf(newSummaryPrompt, conversationText)
	}
	return fmt.Sprintf(updateSummaryPrompt, previousSummary, conversationText)
}

// PromptMessage is one turn of model input.
type PromptMessage struct {
	Role    models.Role
	Content string
}
