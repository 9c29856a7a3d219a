// Package qa answers questions from retrieved document text.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/llm"
	"compliance-rag/internal/logger"
)

// NoContextAnswer is returned, without calling the model, when nothing was retrieved.
const NoContextAnswer = "I'm sorry, I couldn't find any relevant information in the processed documents. " +
	"Can you please rephrase your question or ask about a different topic?"

const promptTemplate = "Based on the following information from processed documents:\n\n%s\n\n" +
	"User question: %s\n\nPlease provide a concise and informative answer:"

// Chatter performs a single chat completion. *llm.Client satisfies it.
type Chatter interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
}

type Responder struct {
	chat Chatter
}

func NewResponder(chat Chatter) (*Responder, error) {
	if chat == nil {
		return nil, errors.New("qa: chat client is required")
	}
	return &Responder{chat: chat}, nil
}

// Prompt renders the question prompt for the given chunks.
func Prompt(question string, chunks []string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(chunks, " "), question)
}

// Answer returns the model's answer. Failures keep their kind
// (RateLimited, RemoteAPIError or Unexpected).
func (r *Responder) Answer(ctx context.Context, question string, chunks []string) (string, error) {
	if len(chunks) == 0 {
		return NoContextAnswer, nil
	}
	answer, err := r.chat.Chat(ctx, llm.AssistantPersona, Prompt(question, chunks))
	if err != nil {
		logger.FromContext(ctx).Error("Answer failed", "kind", domain.KindOf(err), "error", err)
		return "", err
	}
	return answer, nil
}
