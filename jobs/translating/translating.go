// Package translating runs the translation job: segment, fan out to the
// LLM client in parallel, reassemble in input order, persist progress
// incrementally.
package translating

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/doujins-org/polyglotkit/content"
	"github.com/doujins-org/polyglotkit/errs"
	"github.com/doujins-org/polyglotkit/internal/fanout"
	"github.com/doujins-org/polyglotkit/store/artifact"
	"github.com/doujins-org/polyglotkit/store/scylla"
)

// Budgets are the default translation segmentation budgets.
var Budgets = content.Budgets{Section: 3000, High: 3400}

// Parallelism bounds concurrent per-unit translate calls within one job.
const Parallelism = 3

// FreshnessWindow is how long a prior error-free row suppresses re-running.
const FreshnessWindow = time.Hour

// Translator is the single llm.Client method this job needs.
type Translator interface {
	Translate(ctx context.Context, model, contextHint, originLang, targetLang string, rows [][]string, requestID string) (int, [][]string, error)
}

// Deps bundles the collaborators a job needs.
type Deps struct {
	LLM   Translator
	Store *artifact.Store
}

// Params describes one translation request. RequestID, when set, is
// forwarded to the LLM client so upstream logs can be correlated with the
// HTTP request that triggered this job.
type Params struct {
	Key         artifact.Key
	Model       string
	ContextHint string
	OriginLang  string
	TargetLang  string
	Content     content.List
	RequestID   string
}

// ShouldSkip reports whether a fresh, error-free row already satisfies
// params, in which case Run should not be invoked.
func ShouldSkip(ctx context.Context, deps Deps, p Params) (bool, error) {
	row, err := deps.Store.GetTranslating(ctx, p.Key, []string{"model", "error", "updated_at"})
	if err != nil {
		if e, ok := err.(*errs.Error); ok && e.Kind == errs.NotFound {
			return false, nil
		}
		return false, err
	}
	model, _ := row.GetString("model")
	errMsg, _ := row.GetString("error")
	updatedAt, _ := row.GetInt("updated_at")
	if model != p.Model || errMsg != "" {
		return false, nil
	}
	age := time.Since(time.Unix(updatedAt, 0))
	return age < FreshnessWindow, nil
}

// Run executes the translation job synchronously; callers wanting
// fire-and-forget semantics should invoke it from their own goroutine.
func Run(ctx context.Context, deps Deps, p Params) error {
	reset := scylla.NewColumnsMap().
		Set("model", p.Model).
		Set("progress", int8(0)).
		Set("tokens", int32(0)).
		Set("error", "")
	if err := deps.Store.UpsertTranslating(ctx, p.Key, reset); err != nil {
		return err
	}

	units := content.SegmentForTranslation(p.Content, Budgets)
	if len(units) == 0 {
		return deps.Store.UpsertTranslating(ctx, p.Key, scylla.NewColumnsMap().
			Set("progress", int8(100)).
			Set("updated_at", time.Now().Unix()))
	}

	results := make([]content.List, len(units))
	var done atomic.Int64
	var tokens atomic.Int64
	total := int64(len(units))

	g := fanout.New(ctx, Parallelism)
	for i, u := range units {
		i, u := i, u
		g.Go(func(ctx context.Context) error {
			rows := u.ToTranslatingList()
			used, out, err := deps.LLM.Translate(ctx, p.Model, p.ContextHint, p.OriginLang, p.TargetLang, rows, p.RequestID)
			if err != nil {
				return err
			}
			results[i] = u.ReplaceTexts(out)
			tokens.Add(int64(used))
			n := done.Add(1)
			progress := int8(n * 100 / total)
			deps.Store.UpsertTranslating(ctx, p.Key, scylla.NewColumnsMap().
				Set("progress", progress).
				Set("tokens", int32(tokens.Load())).
				Set("updated_at", time.Now().Unix()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		deps.Store.UpsertTranslating(ctx, p.Key, scylla.NewColumnsMap().
			Set("error", err.Error()).
			Set("updated_at", time.Now().Unix()))
		return err
	}

	var final content.List
	for _, r := range results {
		final = append(final, r...)
	}
	finalFields := scylla.NewColumnsMap().
		Set("progress", int8(100)).
		Set("tokens", int32(tokens.Load())).
		Set("error", "").
		Set("updated_at", time.Now().Unix())
	if err := finalFields.SetCBOR("content", final); err != nil {
		return err
	}
	return deps.Store.UpsertTranslating(ctx, p.Key, finalFields)
}
