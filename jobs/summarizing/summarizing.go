// Package summarizing runs the summarization job: segment, summarize each
// piece in parallel, condense if necessary, then extract keywords.
package summarizing

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/doujins-org/polyglotkit/content"
	"github.com/doujins-org/polyglotkit/internal/fanout"
	"github.com/doujins-org/polyglotkit/store/artifact"
	"github.com/doujins-org/polyglotkit/store/scylla"
	"github.com/doujins-org/polyglotkit/tokenizer"
)

// Budgets are the default summarization segmentation budgets.
var Budgets = content.Budgets{Section: 2400, High: 3000}

// Parallelism bounds concurrent per-piece summarize calls within one job.
const Parallelism = 3

// passThroughTokens is the ceiling below which a piece is used verbatim
// instead of being sent through the LLM.
const passThroughTokens = 100

// Summarizer is the subset of llm.Client this job needs.
type Summarizer interface {
	Summarize(ctx context.Context, lang, text, requestID string) (int, string, error)
	Keywords(ctx context.Context, lang, text, requestID string) (int, string, error)
}

// Deps bundles the collaborators a job needs.
type Deps struct {
	LLM   Summarizer
	Store *artifact.Store
}

// Params describes one summarization request. RequestID, when set, is
// forwarded to the LLM client so upstream logs can be correlated with the
// HTTP request that triggered this job.
type Params struct {
	Key       artifact.Key
	Model     string
	Lang      string
	Content   content.List
	RequestID string
}

func fail(ctx context.Context, deps Deps, key artifact.Key, err error) error {
	deps.Store.UpsertSummarizing(ctx, key, scylla.NewColumnsMap().
		Set("error", err.Error()).
		Set("updated_at", time.Now().Unix()))
	return err
}

// Run executes the summarization job synchronously.
func Run(ctx context.Context, deps Deps, p Params) error {
	reset := scylla.NewColumnsMap().
		Set("model", p.Model).
		Set("progress", int8(0)).
		Set("tokens", int32(0)).
		Set("error", "")
	if err := deps.Store.UpsertSummarizing(ctx, p.Key, reset); err != nil {
		return err
	}

	pieces := content.SegmentForSummarization(p.Content, Budgets)
	if len(pieces) == 0 {
		return deps.Store.UpsertSummarizing(ctx, p.Key, scylla.NewColumnsMap().
			Set("progress", int8(100)).Set("updated_at", time.Now().Unix()))
	}

	var totalTokens atomic.Int64
	var body string

	if len(pieces) == 1 && tokenizer.Count(pieces[0]) <= passThroughTokens {
		body = strings.ReplaceAll(pieces[0], "\n", ". ")
	} else {
		summarized := make([]string, len(pieces))
		g := fanout.New(ctx, Parallelism)
		for i, piece := range pieces {
			i, piece := i, piece
			g.Go(func(ctx context.Context) error {
				if tokenizer.Count(piece) <= passThroughTokens {
					summarized[i] = piece
					return nil
				}
				used, s, err := deps.LLM.Summarize(ctx, p.Lang, piece, p.RequestID)
				if err != nil {
					return err
				}
				totalTokens.Add(int64(used))
				summarized[i] = s
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fail(ctx, deps, p.Key, err)
		}
		deps.Store.UpsertSummarizing(ctx, p.Key, scylla.NewColumnsMap().
			Set("progress", int8(50)).
			Set("tokens", int32(totalTokens.Load())).
			Set("updated_at", time.Now().Unix()))

		summarized = trimToBudget(summarized, Budgets.High)
		if len(summarized) == 1 {
			body = summarized[0]
		} else {
			joined := strings.Join(summarized, "\n")
			used, s, err := deps.LLM.Summarize(ctx, p.Lang, joined, p.RequestID)
			if err != nil {
				return fail(ctx, deps, p.Key, err)
			}
			totalTokens.Add(int64(used))
			body = s
		}
	}

	usedKw, keywords, err := deps.LLM.Keywords(ctx, p.Lang, body, p.RequestID)
	if err != nil {
		return fail(ctx, deps, p.Key, err)
	}
	totalTokens.Add(int64(usedKw))

	summary := body
	if kw := normalizeKeywords(keywords); kw != "" {
		summary = kw + "\n" + body
	}

	return deps.Store.UpsertSummarizing(ctx, p.Key, scylla.NewColumnsMap().
		Set("progress", int8(100)).
		Set("tokens", int32(totalTokens.Load())).
		Set("summary", summary).
		Set("error", "").
		Set("updated_at", time.Now().Unix()))
}

// normalizeKeywords splits raw on Unicode punctuation, keeps only tokens
// that contain a letter (dropping list numbering like "1." or "2)"), and
// rejoins the survivors as a comma-separated line.
func normalizeKeywords(raw string) string {
	tokens := strings.FieldsFunc(raw, unicode.IsPunct)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		hasLetter := false
		for _, r := range tok {
			if unicode.IsLetter(r) {
				hasLetter = true
				break
			}
		}
		if hasLetter {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, ", ")
}

// trimToBudget removes pieces from the middle, keeping head and tail, until
// the joined token count fits within budget tokens.
func trimToBudget(pieces []string, budget int) []string {
	total := func(ps []string) int {
		n := 0
		for _, p := range ps {
			n += tokenizer.Count(p)
		}
		return n
	}
	for len(pieces) > 1 && total(pieces) > budget {
		mid := len(pieces) / 2
		pieces = append(pieces[:mid], pieces[mid+1:]...)
	}
	return pieces
}
