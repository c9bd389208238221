package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// NoInformationAnswer is returned without invoking generation when
// retrieval found nothing to ground an answer on.
const NoInformationAnswer = "I could not find relevant information in the ingested documents."

// degradedAnswer is what callers see when any pipeline step failed.
const degradedAnswer = "I'm sorry, I ran into a problem while answering. Please try again."

// maxContextChunks caps the prompt size independently of the requested
// recall: however large topK is, at most this many chunks reach the
// generator.
const maxContextChunks = 5

// maxTitleLen bounds the conversation title derived from the first query.
const maxTitleLen = 30

// Assistant runs the retrieval-and-answer pipeline.
type Assistant struct {
	embedder    domain.Embedder
	generator   domain.Generator
	transcriber domain.Transcriber
	store       vectorstore.Store
	convos      *Conversations
	cols        Collections
	log         *slog.Logger
	now         func() time.Time
}

// NewAssistant wires the pipeline. Retrieval and persistence go through
// the same gateway the conversation manager uses. transcriber may be nil
// when voice queries are not configured.
func NewAssistant(embedder domain.Embedder, generator domain.Generator, transcriber domain.Transcriber,
	convos *Conversations, log *slog.Logger) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{
		embedder:    embedder,
		generator:   generator,
		transcriber: transcriber,
		store:       convos.store,
		convos:      convos,
		cols:        convos.cols,
		log:         log,
		now:         time.Now,
	}
}

// Ask answers a query against the ingested documents and records the turn.
// This method never returns an error: any failure inside the pipeline is
// logged here, at this single boundary, and converted into a degraded but
// well-formed response so the conversation can continue.
func (a *Assistant) Ask(ctx context.Context, query, conversationID string, topK int) domain.Answer {
	answer, err := a.answer(ctx, query, conversationID, topK)
	if err != nil {
		a.log.Error("answer pipeline failed, returning degraded response",
			"conversation_id", conversationID, "err", err)
		if answer.ConversationID == "" {
			answer.ConversationID = conversationID
		}
		answer.Answer = degradedAnswer
		answer.RetrievedCount = 0
		answer.Contexts = nil
	}
	return answer
}

func (a *Assistant) answer(ctx context.Context, query, conversationID string, topK int) (domain.Answer, error) {
	if topK <= 0 {
		topK = 5
	}
	newConversation := conversationID == ""
	if newConversation {
		conversationID = uuid.NewString()
	}
	result := domain.Answer{ConversationID: conversationID, NewConversation: newConversation}

	vector, err := a.embedder.EmbedOne(ctx, query)
	if err != nil {
		return result, fmt.Errorf("embed query: %w", err)
	}

	hits, err := a.store.Search(ctx, a.cols.Documents, vector, topK)
	if err != nil {
		return result, fmt.Errorf("search documents: %w", err)
	}
	contexts := make([]string, 0, len(hits))
	for _, hit := range hits {
		if text := payloadString(hit.Payload, "text"); text != "" {
			contexts = append(contexts, text)
		}
	}

	var answerText string
	if len(contexts) == 0 {
		answerText = NoInformationAnswer
	} else {
		answerText, err = a.generator.Generate(ctx, buildPrompt(query, contexts))
		if err != nil {
			return result, fmt.Errorf("generate answer: %w", err)
		}
	}

	if newConversation {
		if _, err := a.convos.CreateConversation(ctx, conversationID, deriveTitle(query), ""); err != nil {
			return result, fmt.Errorf("create conversation: %w", err)
		}
	} else if err := a.touchConversation(ctx, conversationID); err != nil {
		return result, err
	}

	err = a.convos.AppendMessage(ctx, domain.ChatMessage{
		ConversationID: conversationID,
		Query:          query,
		Response:       answerText,
		Timestamp:      a.now().UTC(),
	}, vector)
	if err != nil {
		return result, fmt.Errorf("persist chat message: %w", err)
	}

	result.Answer = answerText
	result.RetrievedCount = len(contexts)
	result.Contexts = contexts
	return result, nil
}

// AskAudio transcribes a spoken question and feeds the transcript into
// the answer pipeline. Transcription happens before the degradation
// boundary: a recording that yields no usable question is the caller's
// problem, not something to apologize for in a chat bubble.
func (a *Assistant) AskAudio(ctx context.Context, filename string, audio io.Reader, conversationID string, topK int) (domain.Answer, error) {
	if a.transcriber == nil {
		return domain.Answer{}, &domain.ConfigError{Name: "transcriber"}
	}
	query, err := a.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("transcribe %s: %w", filename, err)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Answer{}, &domain.DecodeError{Source: filename, Reason: "transcription produced no text"}
	}
	return a.Ask(ctx, query, conversationID, topK), nil
}

// History exposes the conversation log through the assistant so chat
// frontends need only one dependency.
func (a *Assistant) History(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	return a.convos.History(ctx, conversationID, limit)
}

// touchConversation bumps updated_at on an existing conversation. The
// record must be read first: upserts replace the whole payload. A missing
// record (caller supplied an unknown id) is left alone.
func (a *Assistant) touchConversation(ctx context.Context, id string) error {
	conv, err := a.convos.GetConversation(ctx, id)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}
	if err := a.convos.UpdateConversation(ctx, conv); err != nil {
		return fmt.Errorf("touch conversation %s: %w", id, err)
	}
	return nil
}

func buildPrompt(query string, contexts []string) string {
	if len(contexts) > maxContextChunks {
		contexts = contexts[:maxContextChunks]
	}
	var b strings.Builder
	b.WriteString("Use the following pieces of retrieved context to answer the question.\n\nContext:\n")
	b.WriteString(strings.Join(contexts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// deriveTitle shortens the first query into a conversation title.
func deriveTitle(query string) string {
	title := strings.TrimSpace(query)
	runes := []rune(title)
	if len(runes) <= maxTitleLen {
		return title
	}
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "..."
}
