// Package httpapi wires the HTTP surface described in the external
// interfaces section: job creation/polling endpoints, language listing and
// detection, embedding search and publish, and the healthz counters.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/doujins-org/polyglotkit/content"
	"github.com/doujins-org/polyglotkit/errs"
	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/jobs/embedding"
	"github.com/doujins-org/polyglotkit/jobs/summarizing"
	"github.com/doujins-org/polyglotkit/jobs/translating"
	"github.com/doujins-org/polyglotkit/lang"
	"github.com/doujins-org/polyglotkit/llm"
	"github.com/doujins-org/polyglotkit/search"
	"github.com/doujins-org/polyglotkit/store/artifact"
	"github.com/doujins-org/polyglotkit/store/cache"
	"github.com/doujins-org/polyglotkit/store/scylla"
	"github.com/doujins-org/polyglotkit/store/vector"
)

// AppInfo is the static name/version payload served at "/".
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// App bundles every shared collaborator the HTTP handlers need.
type App struct {
	Info AppInfo

	Scylla   *scylla.Session
	Store    *artifact.Store
	LLM      *llm.Client
	Vector   *vector.Client
	Cache    *cache.Client
	Detector *lang.Detector

	CollectionFor func(gid ids.ID) string

	translatingInFlight atomic.Int64
	embeddingInFlight   atomic.Int64
}

// NewRouter builds the chi router exposing every endpoint.
func NewRouter(app *App) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", app.handleRoot)
	r.Get("/healthz", app.handleHealthz)

	r.Route("/v1/translating", func(r chi.Router) {
		r.Post("/", app.handleTranslatingCreate)
		r.Post("/get", app.handleTranslatingGet)
		r.Get("/list_languages", app.handleListLanguages)
		r.Post("/detect_language", app.handleDetectLanguage)
	})
	r.Route("/v1/summarizing", func(r chi.Router) {
		r.Post("/", app.handleSummarizingCreate)
		r.Post("/get", app.handleSummarizingGet)
	})
	r.Route("/v1/embedding", func(r chi.Router) {
		r.Post("/", app.handleEmbeddingCreate)
		r.Post("/search", app.handleEmbeddingSearch)
		r.Post("/public", app.handleEmbeddingPublish)
	})
	r.Route("/v1/message_translating", func(r chi.Router) {
		r.Post("/", app.handleMessageTranslatingCreate)
		r.Post("/get", app.handleMessageTranslatingGet)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errEnvelope is the error body shape described in the external interfaces
// section: {error: {code, message, data}}.
type errEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	env := errEnvelope{}
	env.Error.Code = code
	env.Error.Message = err.Error()
	var e *errs.Error
	if ee, ok := err.(*errs.Error); ok {
		e = ee
		env.Error.Data = e.Data
	}
	writeJSON(w, code, env)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.InvalidInput, "invalid request body", err)
	}
	return nil
}

func (a *App) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Info)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	m := a.Scylla.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"translating_tasks":      a.translatingInFlight.Load(),
		"embedding_tasks":        a.embeddingInFlight.Load(),
		"scylla_latency_avg_ms":  m.LatencyAvgMs,
		"scylla_latency_p99_ms":  m.LatencyP99Ms,
		"scylla_latency_p90_ms":  m.LatencyP90Ms,
		"scylla_errors_num":      m.ErrorsNum,
		"scylla_queries_num":     m.QueriesNum,
		"scylla_errors_iter_num": m.IterErrorsNum,
		"scylla_queries_iter_num": m.IterQueriesNum,
		"scylla_retries_num":     m.RetriesNum,
	})
}

func (a *App) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lang.List())
}

func (a *App) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": a.Detector.Detect(req.Text)})
}

type createKeyRequest struct {
	GID      string `json:"gid"`
	CID      string `json:"cid"`
	Language string `json:"language"`
	Version  int    `json:"version"`
}

func (req createKeyRequest) toKey() (artifact.Key, error) {
	gid, err := ids.ParseID(req.GID)
	if err != nil {
		return artifact.Key{}, errs.Wrap(errs.InvalidInput, "invalid gid", err)
	}
	cid, err := ids.ParseID(req.CID)
	if err != nil {
		return artifact.Key{}, errs.Wrap(errs.InvalidInput, "invalid cid", err)
	}
	if req.Version < 1 || req.Version > 10000 {
		return artifact.Key{}, errs.New(errs.InvalidInput, "version out of range")
	}
	return artifact.Key{GID: gid, CID: cid, Language: req.Language, Version: req.Version}, nil
}

type translatingCreateRequest struct {
	createKeyRequest
	Model       string          `json:"model"`
	ContextHint string          `json:"context"`
	OriginLang  string          `json:"origin_language"`
	TargetLang  string          `json:"target_language"`
	Content     content.List    `json:"content"`
}

func (a *App) handleTranslatingCreate(w http.ResponseWriter, r *http.Request) {
	var req translatingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := req.toKey()
	if err != nil {
		writeError(w, err)
		return
	}
	deps := translating.Deps{LLM: a.LLM, Store: a.Store}
	params := translating.Params{
		Key: key, Model: req.Model, ContextHint: req.ContextHint,
		OriginLang: req.OriginLang, TargetLang: req.TargetLang, Content: req.Content,
		RequestID: middleware.GetReqID(r.Context()),
	}
	skip, err := translating.ShouldSkip(r.Context(), deps, params)
	if err != nil {
		writeError(w, err)
		return
	}
	if !skip {
		a.translatingInFlight.Add(1)
		go func() {
			defer a.translatingInFlight.Add(-1)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			_ = translating.Run(ctx, deps, params)
		}()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"gid": req.GID, "cid": req.CID, "language": req.Language, "version": req.Version})
}

func (a *App) handleTranslatingGet(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := req.toKey()
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := a.Store.GetTranslating(r.Context(), key, []string{"model", "progress", "tokens", "error", "updated_at"})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type summarizingCreateRequest struct {
	createKeyRequest
	Model   string       `json:"model"`
	Lang    string       `json:"language"`
	Content content.List `json:"content"`
}

func (a *App) handleSummarizingCreate(w http.ResponseWriter, r *http.Request) {
	var req summarizingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := req.toKey()
	if err != nil {
		writeError(w, err)
		return
	}
	deps := summarizing.Deps{LLM: a.LLM, Store: a.Store}
	params := summarizing.Params{
		Key: key, Model: req.Model, Lang: req.Lang, Content: req.Content,
		RequestID: middleware.GetReqID(r.Context()),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		_ = summarizing.Run(ctx, deps, params)
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"gid": req.GID, "cid": req.CID})
}

func (a *App) handleSummarizingGet(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := req.toKey()
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := a.Store.GetSummarizing(r.Context(), key, []string{"model", "progress", "tokens", "summary", "error", "updated_at"})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type embeddingCreateRequest struct {
	createKeyRequest
	Content content.List `json:"content"`
}

func (a *App) handleEmbeddingCreate(w http.ResponseWriter, r *http.Request) {
	var req embeddingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := req.toKey()
	if err != nil {
		writeError(w, err)
		return
	}
	deps := embedding.Deps{LLM: a.LLM, Store: a.Store, Vector: a.Vector}
	params := embedding.Params{
		Key: key, Content: req.Content, Collection: a.CollectionFor(key.GID),
		RequestID: middleware.GetReqID(r.Context()),
	}
	a.embeddingInFlight.Add(1)
	go func() {
		defer a.embeddingInFlight.Add(-1)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		_ = embedding.Run(ctx, deps, params)
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"gid": req.GID, "cid": req.CID})
}

func (a *App) handleEmbeddingPublish(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := req.toKey()
	if err != nil {
		writeError(w, err)
		return
	}
	deps := embedding.Deps{Store: a.Store, Vector: a.Vector}
	if err := embedding.Publish(r.Context(), deps, key, a.CollectionFor(key.GID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleEmbeddingSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		GID      string `json:"gid"`
		Language string `json:"language"`
		CID      string `json:"cid"`
		Public   bool   `json:"public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	params := search.Params{
		Query: req.Query, Language: req.Language, Public: req.Public,
		RequestID: middleware.GetReqID(r.Context()),
	}
	if req.GID != "" {
		gid, err := ids.ParseID(req.GID)
		if err != nil {
			writeError(w, errs.Wrap(errs.InvalidInput, "invalid gid", err))
			return
		}
		params.GID = &gid
	}
	if req.CID != "" {
		cid, err := ids.ParseID(req.CID)
		if err != nil {
			writeError(w, errs.Wrap(errs.InvalidInput, "invalid cid", err))
			return
		}
		params.CID = &cid
	}
	deps := search.Deps{LLM: a.LLM, Store: a.Store, Vector: a.Vector, CollectionFor: a.CollectionFor}
	results, err := search.Run(r.Context(), deps, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type messageTranslatingRequest struct {
	ID         string `json:"id"`
	Language   string `json:"language"`
	Version    int    `json:"version"`
	Model      string `json:"model"`
	OriginLang string `json:"origin_language"`
	Text       string `json:"text"`
}

func (a *App) handleMessageTranslatingCreate(w http.ResponseWriter, r *http.Request) {
	var req messageTranslatingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key := cache.MessageTranslatingKey(req.ID, req.Language, req.Version)
	placeholder, _ := json.Marshal(map[string]any{"progress": 0, "error": ""})
	acquired, err := a.Cache.NewData(r.Context(), key, placeholder)
	if err != nil {
		writeError(w, err)
		return
	}
	if acquired {
		requestID := middleware.GetReqID(r.Context())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			tokens, out, err := a.LLM.Translate(ctx, req.Model, "", req.OriginLang, req.Language, [][]string{{"1:", req.Text}}, requestID)
			body := map[string]any{"progress": 100, "tokens": tokens, "error": ""}
			if err != nil {
				body = map[string]any{"progress": 0, "error": err.Error()}
			} else if len(out) > 0 && len(out[0]) > 1 {
				body["text"] = out[0][1]
			}
			b, _ := json.Marshal(body)
			_ = a.Cache.UpdateData(ctx, key, b)
		}()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": req.ID})
}

func (a *App) handleMessageTranslatingGet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Language string `json:"language"`
		Version  int    `json:"version"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key := cache.MessageTranslatingKey(req.ID, req.Language, req.Version)
	b, err := a.Cache.GetData(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
