package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hachimB/student-assistant/internal/retriever"
)

// ErrNoRelevantContext means no retrieved chunk survived filtering or fit
// the context budget. Not a pipeline failure: the caller must answer with
// FallbackAnswer instead of invoking the generator unconstrained.
var ErrNoRelevantContext = errors.New("no relevant context for question")

// FallbackAnswer is returned verbatim when the documents hold nothing
// relevant, instead of letting the model fabricate one.
const FallbackAnswer = "I don't have this information in the official university documents available to me. Please check with the student administration office."

const systemInstruction = "You are a virtual assistant for university students. " +
	"Answer questions about schedules, regulations, procedures and FAQs using ONLY the document excerpts provided in the context. " +
	"Cite the source document and page for every piece of information. " +
	"If the context does not contain the answer, say you do not have that information. " +
	"Be precise, professional and concise. Answer in the language the question was asked in."

const DefaultMaxContextTokens = 1500

// Citation links an answer back to its source document and page. Derived
// from the retrieved chunk at assembly time, discarded with the query.
type Citation struct {
	DocumentTitle string  `json:"document_title"`
	Category      string  `json:"category,omitempty"`
	PageNumber    int     `json:"page_number"`
	Excerpt       string  `json:"excerpt"`
	Score         float64 `json:"score"`
}

// Prompt is the assembled generation input plus the citations that every
// context block inserted into it carries.
type Prompt struct {
	System    string
	User      string
	Citations []Citation
}

type Assembler struct {
	maxContextTokens int
}

func NewAssembler(maxContextTokens int) *Assembler {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &Assembler{maxContextTokens: maxContextTokens}
}

// Assemble merges the retrieved blocks with the question into a grounded
// generation prompt, in rank order, each block annotated with its document
// title and page number. Blocks that would push past the context budget
// are dropped lowest-rank-first, never cut mid-block. Fails with
// ErrNoRelevantContext when no block is available or none fits.
func (a *Assembler) Assemble(question string, results []retriever.Result) (*Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if len(results) == 0 {
		return nil, ErrNoRelevantContext
	}

	budget := a.maxContextTokens - countTokens(question)

	var (
		blocks    []string
		citations []Citation
		used      int
	)
	for i, res := range results {
		block := fmt.Sprintf("[Document %d]\nSource: %s (page %d)\nContent: %s",
			i+1, res.DocumentTitle, res.PageNumber, res.Text)
		cost := countTokens(block)
		if used+cost > budget {
			break
		}
		used += cost
		blocks = append(blocks, block)
		citations = append(citations, Citation{
			DocumentTitle: res.DocumentTitle,
			Category:      res.Category,
			PageNumber:    res.PageNumber,
			Excerpt:       excerpt(res.Text, 200),
			Score:         res.Score,
		})
	}
	if len(blocks) == 0 {
		return nil, ErrNoRelevantContext
	}

	var b strings.Builder
	b.WriteString("Context:\n\n")
	b.WriteString(strings.Join(blocks, "\n---\n"))
	b.WriteString("\n\nStudent question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer based only on the context above, citing the source document and page for each fact.")

	return &Prompt{
		System:    systemInstruction,
		User:      b.String(),
		Citations: citations,
	}, nil
}

// countTokens approximates the generator's token count by whitespace
// separated fields.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
