package bot

import (
	"fmt"
	"strings"

	"github.com/yonasatinafu/portfolio-bot/internal/knowledge"
	"github.com/yonasatinafu/portfolio-bot/internal/model"
)

// RefusalMessage is returned verbatim whenever the retrieved context is
// insufficient or the model declines to answer. The apostrophes are
// U+2019 so the sentence matches the site copy byte for byte.
const RefusalMessage = "I don’t know based on the current site content. " +
	"If you’d like, share your email and I can follow up."

const systemPrompt = "You are the assistant for Yonas Atinafu's portfolio website. " +
	"Only answer using the provided context snippets. " +
	"Do not invent facts, projects, dates, or links that are not in context. " +
	"If context is insufficient, reply exactly with the fallback sentence provided in instructions. " +
	"Keep responses concise, helpful, and professional."

// historyPromptTurns caps how many trailing history messages appear in
// the prompt, independent of the larger history retention cap.
const historyPromptTurns = 8

func renderHistory(history []Message) string {
	if len(history) == 0 {
		return "(no previous turns)"
	}
	start := 0
	if len(history) > historyPromptTurns {
		start = len(history) - historyPromptTurns
	}
	rows := make([]string, 0, len(history)-start)
	for _, item := range history[start:] {
		role := "Assistant"
		if item.Role == "user" {
			role = "User"
		}
		rows = append(rows, role+": "+item.Content)
	}
	return strings.Join(rows, "\n")
}

// buildPromptMessages assembles the two-message conversation sent to the
// model: the fixed system prompt plus one user block carrying page URL,
// recent turns, numbered context snippets, the question, and the
// fallback instruction.
func buildPromptMessages(userMessage string, history []Message, pageURL string, retrieved []knowledge.ScoredChunk) []model.Message {
	snippets := make([]string, 0, len(retrieved))
	for idx, sc := range retrieved {
		snippets = append(snippets, fmt.Sprintf("[%d] title=%s url=%s\n%s", idx+1, sc.Title, sc.URL, sc.Text))
	}

	page := pageURL
	if page == "" {
		page = "(not provided)"
	}

	userBlock := fmt.Sprintf(
		"Current page URL: %s\n\nRecent conversation:\n%s\n\nRetrieved context:\n%s\n\nUser question: %s\n\nFallback sentence if context is insufficient: %s",
		page,
		renderHistory(history),
		strings.Join(snippets, "\n\n"),
		userMessage,
		RefusalMessage,
	)

	return []model.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userBlock},
	}
}
