// Package llm is the multi-backend LLM client: one direct OpenAI endpoint
// plus N Azure-OpenAI endpoints, dispatched with round-robin failover,
// gzip compression of large request bodies, and finish-reason status
// mapping.
package llm

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/doujins-org/polyglotkit/config"
	"github.com/doujins-org/polyglotkit/errs"
	"github.com/doujins-org/polyglotkit/internal/normalize"
	"github.com/doujins-org/polyglotkit/jsonrepair"
)

const gzipThreshold = 256

// backend is one configured upstream: a set of URLs and static headers.
type backend struct {
	name         string
	chatURL      string
	largeChatURL string
	embeddingURL string
	headers      map[string]string
	httpClient   *http.Client
}

// Client round-robins across configured backends.
type Client struct {
	backends []*backend
	rr       atomic.Uint64
}

// NewClient builds a client from the ai config block. At least one
// non-disabled backend must be present.
func NewClient(cfg config.AI) (*Client, error) {
	var tlsConfig *tls.Config
	if cfg.Agent.ClientPEMFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Agent.ClientPEMFile, cfg.Agent.ClientPEMFile)
		if err != nil {
			return nil, fmt.Errorf("llm: load agent client cert: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	httpClient := &http.Client{
		Timeout: 180 * time.Second,
		Transport: &gzipTransport{
			base: &http.Transport{
				TLSClientConfig:     tlsConfig,
				ForceAttemptHTTP2:   true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}

	var backends []*backend

	if !cfg.OpenAI.Disable && cfg.OpenAI.APIKey != "" {
		headers := map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey}
		if cfg.OpenAI.OrgID != "" {
			headers["OpenAI-Organization"] = cfg.OpenAI.OrgID
		}
		if cfg.OpenAI.AgentEndpoint != "" {
			headers["x-forwarded-host"] = "api.openai.com"
		}
		base := endpointOrDefault(cfg.OpenAI.AgentEndpoint, "https://api.openai.com")
		backends = append(backends, &backend{
			name:         "openai",
			chatURL:      base + "/v1/chat/completions",
			largeChatURL: base + "/v1/chat/completions",
			embeddingURL: base + "/v1/embeddings",
			headers:      headers,
			httpClient:   httpClient,
		})
	}

	for i, az := range cfg.AzureAIs {
		if az.Disable || az.ResourceName == "" {
			continue
		}
		headers := map[string]string{"api-key": az.APIKey}
		host := fmt.Sprintf("https://%s.openai.azure.com", az.ResourceName)
		if az.AgentEndpoint != "" {
			headers["x-forwarded-host"] = fmt.Sprintf("%s.openai.azure.com", az.ResourceName)
			host = az.AgentEndpoint
		}
		b := &backend{
			name:       fmt.Sprintf("azure-%d", i),
			headers:    headers,
			httpClient: httpClient,
		}
		if az.ChatModel != "" {
			b.chatURL = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", host, az.ChatModel, az.APIVersion)
		}
		if az.GPT4ChatModel != "" {
			b.largeChatURL = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", host, az.GPT4ChatModel, az.APIVersion)
		} else {
			b.largeChatURL = b.chatURL
		}
		if az.EmbeddingModel != "" {
			b.embeddingURL = fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s", host, az.EmbeddingModel, az.APIVersion)
		}
		backends = append(backends, b)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("llm: no enabled backend configured")
	}
	return &Client{backends: backends}, nil
}

func endpointOrDefault(endpoint, def string) string {
	if endpoint == "" {
		return def
	}
	return endpoint
}

// gzipTransport compresses outgoing request bodies above gzipThreshold and
// sets Content-Encoding accordingly.
type gzipTransport struct {
	base http.RoundTripper
}

func (t *gzipTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.ContentLength > gzipThreshold {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(body); err == nil && gw.Close() == nil {
			req.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
			req.ContentLength = int64(buf.Len())
			req.Header.Set("Content-Encoding", "gzip")
		} else {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
	}
	return t.base.RoundTrip(req)
}

// pick returns the next backend in round-robin order, skipping `skip`.
func (c *Client) pick(skip *backend) *backend {
	idx := c.rr.Add(1) - 1
	b := c.backends[int(idx)%len(c.backends)]
	if b == skip && len(c.backends) > 1 {
		idx = c.rr.Add(1) - 1
		b = c.backends[int(idx)%len(c.backends)]
	}
	return b
}

func (c *Client) doJSON(ctx context.Context, b *backend, url string, reqBody, respBody any, requestID string) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return errs.Wrap(errs.Internal, "llm: marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(errs.Internal, "llm: build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.ContentLength = int64(len(payload))
	if requestID != "" {
		httpReq.Header.Set("x-request-id", requestID)
	}
	for k, v := range b.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return errs.Wrap(errs.Upstream, fmt.Sprintf("llm: request to %s", b.name), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.Upstream, "llm: read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return errs.New(errs.RateLimited, "llm: rate limited").WithCode(resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return errs.New(errs.Upstream, fmt.Sprintf("llm: %s returned %d", b.name, resp.StatusCode)).WithCode(resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		if strings.Contains(string(body), "content_filter") {
			return errs.New(errs.ContentViolation, "llm: content filtered").WithCode(451)
		}
		if strings.Contains(string(body), "context_length_exceeded") {
			return errs.New(errs.ParseFailure, "llm: context length exceeded").WithCode(422)
		}
		return errs.New(errs.InvalidInput, fmt.Sprintf("llm: %s returned %d: %s", b.name, resp.StatusCode, body)).WithCode(resp.StatusCode)
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return errs.Wrap(errs.Internal, "llm: decode response", err)
	}
	return nil
}

// withRetry calls fn against one backend; on a rate-limit or upstream
// error it retries exactly once against the next backend in rotation.
func (c *Client) withRetry(ctx context.Context, fn func(*backend) error) error {
	b := c.pick(nil)
	err := fn(b)
	if err == nil {
		return nil
	}
	kind := errs.CodeOf(err)
	if kind != 429 && kind < 500 {
		return err
	}
	nb := c.pick(b)
	return fn(nb)
}

func statusFromFinishReason(reason openai.FinishReason) *errs.Error {
	switch reason {
	case openai.FinishReasonStop:
		return nil
	case openai.FinishReasonLength:
		return errs.New(errs.ParseFailure, "llm: response truncated").WithCode(422)
	case openai.FinishReasonContentFilter:
		return errs.New(errs.ContentFilter, "llm: content filtered").WithCode(452)
	default:
		return errs.New(errs.Internal, fmt.Sprintf("llm: unexpected finish reason %q", reason)).WithCode(500)
	}
}

// Embed embeds inputs in one batch call. len(vectors) always equals
// len(inputs) on success. requestID, when non-empty, is forwarded as the
// x-request-id header so upstream logs can be correlated with the caller.
func (c *Client) Embed(ctx context.Context, inputs []string, requestID string) (totalTokens int, vectors [][]float32, err error) {
	err = c.withRetry(ctx, func(b *backend) error {
		if b.embeddingURL == "" {
			return errs.New(errs.Internal, fmt.Sprintf("backend %s has no embedding endpoint", b.name))
		}
		req := openai.EmbeddingRequest{Input: inputs}
		var resp openai.EmbeddingResponse
		if derr := c.doJSON(ctx, b, b.embeddingURL, req, &resp, requestID); derr != nil {
			return derr
		}
		if len(resp.Data) != len(inputs) {
			return errs.New(errs.Internal, fmt.Sprintf("llm: expected %d embeddings, got %d", len(inputs), len(resp.Data)))
		}
		vectors = make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			normalize.L2NormalizeInPlace(d.Embedding)
			vectors[d.Index] = d.Embedding
		}
		totalTokens = resp.Usage.TotalTokens
		return nil
	})
	return totalTokens, vectors, err
}

const translateSystemPromptTmpl = `You are a professional translator. Translate the user's content from %s to %s. ` +
	`The input is a JSON array of arrays; the first element of each inner array is a positional ` +
	`marker of the form "N:" that you MUST preserve unchanged, translating only the remaining ` +
	`elements. Preserve the exact array structure and element count. Context: %s`

// Translate sends one unit's rows for translation and parses the model's
// JSON array response, repairing it first if strict parsing fails.
// requestID, when non-empty, is forwarded as the x-request-id header.
func (c *Client) Translate(ctx context.Context, model, contextHint, originLang, targetLang string, rows [][]string, requestID string) (totalTokens int, out [][]string, err error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return 0, nil, errs.Wrap(errs.Internal, "llm: marshal translate input", err)
	}
	sysPrompt := fmt.Sprintf(translateSystemPromptTmpl, originLang, targetLang, contextHint)

	err = c.withRetry(ctx, func(b *backend) error {
		url := chatURLFor(b, model)
		if url == "" {
			return errs.New(errs.Internal, fmt.Sprintf("backend %s has no chat endpoint for model %q", b.name, model))
		}
		req := openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: sysPrompt},
				{Role: openai.ChatMessageRoleUser, Content: string(payload)},
			},
		}
		var resp openai.ChatCompletionResponse
		if derr := c.doJSON(ctx, b, url, req, &resp, requestID); derr != nil {
			return derr
		}
		if len(resp.Choices) == 0 {
			return errs.New(errs.Internal, "llm: empty choices")
		}
		choice := resp.Choices[0]
		if statusErr := statusFromFinishReason(choice.FinishReason); statusErr != nil {
			return statusErr
		}
		content := choice.Message.Content
		var parsed [][]string
		if jerr := json.Unmarshal([]byte(content), &parsed); jerr != nil {
			fixed, ferr := jsonrepair.FixArray(content)
			if ferr != nil {
				return errs.Wrap(errs.ParseFailure, "llm: translate output is not a recoverable JSON array", ferr)
			}
			if jerr2 := json.Unmarshal([]byte(fixed), &parsed); jerr2 != nil {
				return errs.Wrap(errs.ParseFailure, "llm: translate output could not be repaired", jerr2)
			}
			log.Printf("llm: translate output repaired backend=%s json_fixed=true", b.name)
		}
		if len(parsed) != len(rows) {
			log.Printf("llm: translate cardinality mismatch backend=%s rows_in=%d rows_out=%d", b.name, len(rows), len(parsed))
		} else {
			for i := range parsed {
				if len(parsed[i]) != len(rows[i]) {
					log.Printf("llm: translate cardinality mismatch backend=%s row=%d cols_in=%d cols_out=%d", b.name, i, len(rows[i]), len(parsed[i]))
					break
				}
			}
		}
		out = parsed
		totalTokens = resp.Usage.TotalTokens
		return nil
	})
	return totalTokens, out, err
}

const summarizeSystemPrompt = `Summarize the user's content in %s in a concise, faithful paragraph. Respond with the summary text only.`

// Summarize produces a single-paragraph summary of text. requestID, when
// non-empty, is forwarded as the x-request-id header.
func (c *Client) Summarize(ctx context.Context, lang, text, requestID string) (totalTokens int, summary string, err error) {
	err = c.chatOnce(ctx, "", fmt.Sprintf(summarizeSystemPrompt, lang), text, requestID, &totalTokens, &summary)
	return totalTokens, summary, err
}

const keywordsSystemPrompt = `Extract up to five comma-separated keywords from the user's %s content. Respond with only the comma-separated list.`

// Keywords extracts a small comma-separated keyword list from text.
// requestID, when non-empty, is forwarded as the x-request-id header.
func (c *Client) Keywords(ctx context.Context, lang, text, requestID string) (totalTokens int, csv string, err error) {
	err = c.chatOnce(ctx, "", fmt.Sprintf(keywordsSystemPrompt, lang), text, requestID, &totalTokens, &csv)
	return totalTokens, csv, err
}

func (c *Client) chatOnce(ctx context.Context, model, sysPrompt, userContent, requestID string, totalTokens *int, out *string) error {
	return c.withRetry(ctx, func(b *backend) error {
		url := chatURLFor(b, model)
		if url == "" {
			return errs.New(errs.Internal, fmt.Sprintf("backend %s has no chat endpoint", b.name))
		}
		req := openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: sysPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userContent},
			},
		}
		var resp openai.ChatCompletionResponse
		if derr := c.doJSON(ctx, b, url, req, &resp, requestID); derr != nil {
			return derr
		}
		if len(resp.Choices) == 0 {
			return errs.New(errs.Internal, "llm: empty choices")
		}
		choice := resp.Choices[0]
		if statusErr := statusFromFinishReason(choice.FinishReason); statusErr != nil {
			return statusErr
		}
		*out = strings.TrimSpace(choice.Message.Content)
		*totalTokens = resp.Usage.TotalTokens
		return nil
	})
}

// chatURLFor picks the large-context endpoint for models the caller flags
// as large by naming convention, else the standard chat endpoint.
func chatURLFor(b *backend, model string) string {
	if strings.Contains(strings.ToLower(model), "gpt-4") && b.largeChatURL != "" {
		return b.largeChatURL
	}
	if b.chatURL != "" {
		return b.chatURL
	}
	return b.largeChatURL
}
