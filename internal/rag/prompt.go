package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragbot/internal/llm"
	"ragbot/internal/registry"
	"ragbot/internal/vectorstore"
)

// DefaultMaxContextChars bounds the concatenated chunk text sent to the model.
const DefaultMaxContextChars = 6000

const contextSeparator = "\n---\n"

const systemPrompt = "You are an assistant that answers questions strictly from the provided context. " +
	"Use only the information in the context below. If the context does not contain enough information " +
	"to answer, say that you cannot answer from the available information. " +
	"Cite the sources you used with bracketed numbers such as [1], using only the numbers listed under Sources. " +
	"Never invent source numbers. Answer in the language of the question."

// Prompt is the assembled request for one question.
type Prompt struct {
	// Messages are sent to the completion backend as-is.
	Messages []llm.Message
	// Manifest lists the source URLs in citation order: marker [n] refers to Manifest[n-1].
	Manifest []string
	// Context is the concatenated text of the kept chunks.
	Context string
	// Kept is the number of leading results that fit the context budget.
	Kept int
	// Dropped is the number of trailing results left out.
	Dropped int
	// ContextChars is the rune length of Context.
	ContextChars int
	// OverBudget is set when the first chunk alone exceeds the character budget. It is
	// sent whole rather than cut.
	OverBudget bool
}

// BuildManifest returns the distinct URLs of results in first-seen order, leaving out
// chunks without a known source.
func BuildManifest(results []vectorstore.SearchResult) []string {
	manifest := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r.URL == "" || r.URL == registry.UnknownSource {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		manifest = append(manifest, r.URL)
	}
	return manifest
}

// Assembler builds grounded prompts from retrieval results.
type Assembler struct {
	maxContextChars int
}

// NewAssembler creates an assembler. maxContextChars <= 0 selects DefaultMaxContextChars.
func NewAssembler(maxContextChars int) *Assembler {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &Assembler{maxContextChars: maxContextChars}
}

// Assemble keeps results in order while their text fits the character budget, always
// keeping the first one, and builds the prompt from the kept chunks only.
func (a *Assembler) Assemble(question string, results []vectorstore.SearchResult) Prompt {
	kept, total := a.fit(results)
	manifest := BuildManifest(kept)

	number := make(map[string]int, len(manifest))
	for i, url := range manifest {
		number[url] = i + 1
	}

	texts := make([]string, len(kept))
	labeled := make([]string, len(kept))
	for i, r := range kept {
		texts[i] = r.Text
		if n, ok := number[r.URL]; ok {
			labeled[i] = fmt.Sprintf("(source [%d])\n%s", n, r.Text)
		} else {
			labeled[i] = r.Text
		}
	}

	var user strings.Builder
	user.WriteString("Sources:\n")
	if len(manifest) == 0 {
		user.WriteString("(none, do not cite)\n")
	}
	for i, url := range manifest {
		fmt.Fprintf(&user, "[%d] %s\n", i+1, url)
	}
	user.WriteString("\nContext:\n")
	user.WriteString(strings.Join(labeled, contextSeparator))
	user.WriteString("\n\nQuestion: ")
	user.WriteString(question)

	return Prompt{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: user.String()},
		},
		Manifest:     manifest,
		Context:      strings.Join(texts, contextSeparator),
		Kept:         len(kept),
		Dropped:      len(results) - len(kept),
		ContextChars: total,
		OverBudget:   total > a.maxContextChars,
	}
}

// fit returns the longest prefix of results whose joined text stays within the budget,
// never shorter than one result, and the rune length of that joined text.
func (a *Assembler) fit(results []vectorstore.SearchResult) ([]vectorstore.SearchResult, int) {
	if len(results) == 0 {
		return nil, 0
	}
	sepLen := utf8.RuneCountInString(contextSeparator)
	total := utf8.RuneCountInString(results[0].Text)
	n := 1
	for ; n < len(results); n++ {
		next := total + sepLen + utf8.RuneCountInString(results[n].Text)
		if next > a.maxContextChars {
			break
		}
		total = next
	}
	return results[:n], total
}
