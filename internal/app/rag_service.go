package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hachimB/student-assistant/internal/model"
	"github.com/hachimB/student-assistant/internal/prompt"
	"github.com/hachimB/student-assistant/internal/retriever"
)

// Generator is the answer collaborator boundary: prompt in, text out.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// AnswerCache memoizes full ask results per question, topK and category.
type AnswerCache interface {
	Get(ctx context.Context, question string, topK int, category string, out interface{}) (bool, error)
	Set(ctx context.Context, question string, topK int, category string, payload interface{}) error
}

// RAGService answers student questions grounded in the indexed documents:
// retrieve, assemble, generate, cite.
type RAGService struct {
	retriever    *retriever.Retriever
	assembler    *prompt.Assembler
	generator    Generator
	answerCache  AnswerCache
	conversation *ConversationService
}

func NewRAGService(
	ret *retriever.Retriever,
	assembler *prompt.Assembler,
	generator Generator,
	answerCache AnswerCache,
	conversation *ConversationService,
) *RAGService {
	return &RAGService{
		retriever:    ret,
		assembler:    assembler,
		generator:    generator,
		answerCache:  answerCache,
		conversation: conversation,
	}
}

type AskInput struct {
	UserID    uint
	SessionID uint // 0 = one-off question outside any conversation
	Question  string
	TopK      int
	MinScore  float64
	Category  string // restrict retrieval to one document category
}

type AskResult struct {
	AnswerID  string            `json:"answer_id"`
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Citations []prompt.Citation `json:"citations"`
	Grounded  bool              `json:"grounded"`
	Cached    bool              `json:"cached"`
}

// Ask runs the query-time pipeline. When retrieval finds nothing above
// the relevance floor the fixed fallback answer is returned and the
// generator is never invoked, so the model cannot fabricate an answer.
// Retrieval and assembly are read-only with respect to the index; a
// cancellation while waiting on a collaborator propagates to the caller
// and leaves no partial state.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	if s.answerCache != nil {
		var cached AskResult
		hit, err := s.answerCache.Get(ctx, question, input.TopK, input.Category, &cached)
		if err != nil {
			log.Printf("answer cache lookup failed: %v", err)
		} else if hit {
			// Feedback correlates through the answer ID, so a replayed
			// answer still gets its own.
			cached.AnswerID = uuid.NewString()
			cached.Cached = true
			s.record(ctx, input, &cached)
			return &cached, nil
		}
	}

	minScore := input.MinScore
	if minScore <= 0 {
		minScore = -1 // retriever default
	}
	results, err := s.retriever.Retrieve(ctx, question, input.TopK, minScore, input.Category)
	if err != nil {
		return nil, err
	}

	result := &AskResult{
		AnswerID: uuid.NewString(),
		Question: question,
	}

	assembled, err := s.assembler.Assemble(question, results)
	if errors.Is(err, prompt.ErrNoRelevantContext) {
		result.Answer = prompt.FallbackAnswer
		result.Citations = []prompt.Citation{}
		s.record(ctx, input, result)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Complete(ctx, assembled.System, assembled.User)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = prompt.FallbackAnswer
	} else {
		result.Grounded = true
	}
	result.Answer = answer
	result.Citations = assembled.Citations

	if s.answerCache != nil && result.Grounded {
		if err := s.answerCache.Set(ctx, question, input.TopK, input.Category, result); err != nil {
			log.Printf("answer cache store failed: %v", err)
		}
	}

	s.record(ctx, input, result)
	return result, nil
}

// record appends the exchange to the conversation, when one is attached.
// Persistence is asynchronous and must not fail the answer.
func (s *RAGService) record(ctx context.Context, input AskInput, result *AskResult) {
	if s.conversation == nil || input.SessionID == 0 {
		return
	}

	citations, err := json.Marshal(result.Citations)
	if err != nil {
		citations = []byte("[]")
	}
	exchange := Exchange{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Question:  result.Question,
		Answer: model.Message{
			SessionID: input.SessionID,
			UserID:    input.UserID,
			Role:      "assistant",
			Content:   result.Answer,
			AnswerID:  result.AnswerID,
			Citations: string(citations),
			CreatedAt: time.Now(),
		},
	}
	if err := s.conversation.AppendExchange(ctx, exchange); err != nil {
		log.Printf("record conversation exchange failed: %v", err)
	}
}
