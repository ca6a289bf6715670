package pipeline

import (
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/vector"
	"github.com/ragline/ragline/provider"
)

const systemPrompt = `You are a precise and reliable assistant. Your goal is to answer the question using *only* the information provided in the CONTEXT. Do not guess or make up any information.
Instructions:
- If the 'Has_answer' flag is False, check the context carefully for relevant details. If no answer is clearly supported, reply with: "I don't know. This is beyond my knowledge base."
- If the answer *is* supported in the context, rephrase and present it clearly and concisely, ensuring it is directly grounded in the information provided.
- Do not use any external knowledge or assumptions. Stick strictly to the *CONTEXT*.
- Do not fabricate answers or speculate beyond the given information.`

// NoContextAnswer is returned when retrieval finds nothing, so the system
// states that no answer is available instead of fabricating one.
const NoContextAnswer = "I don't know. No relevant context was found in the knowledge base."

// formatContext renders retrieved passages the way the generator expects.
func formatContext(results []vector.ScoredPoint) string {
	blocks := make([]string, 0, len(results))
	for _, res := range results {
		m := res.Payload.Metadata
		blocks = append(blocks, fmt.Sprintf(
			"Context:   %s\nQuestion:  %s\nAnswer:    %s\nHas_answer: %t",
			m.Context, m.Question, m.Answer, m.HasAnswer))
	}
	return strings.Join(blocks, "\n\n")
}

// buildPrompt assembles the grounded-answering prompt from the user question
// and the retrieved context.
func buildPrompt(question string, results []vector.ScoredPoint) []provider.Message {
	context := formatContext(results)
	return []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("QUESTION:\n%s\nCONTEXT:\n%s", question, strings.TrimSpace(context))},
	}
}
