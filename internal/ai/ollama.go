package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

type ollamaConfig struct {
	BaseURL string `json:"base_url"`
}

// ollamaProvider talks to a locally hosted model server. A connection
// failure means "no local model running" and is reported as unavailable
// so the chain can fall through to a remote backend.
type ollamaProvider struct {
	baseURL string
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Available() bool {
	return p.baseURL != ""
}

func (p *ollamaProvider) postJSON(ctx context.Context, path string, reqBody interface{}, out interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.baseURL == "" {
		return "", ErrUnavailable
	}
	var out ollamaGenerateResponse
	if err := p.postJSON(ctx, "/api/generate", ollamaGenerateRequest{Model: model, Prompt: prompt, Stream: false}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

type ollamaEmbedProvider struct {
	ollamaProvider
}

func (p *ollamaEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if p.baseURL == "" {
		return nil, ErrUnavailable
	}
	var out ollamaEmbedResponse
	if err := p.postJSON(ctx, "/api/embeddings", ollamaEmbedRequest{Model: model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}
	return out.Embedding, nil
}

func (p *ollamaEmbedProvider) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	// The embeddings endpoint takes one prompt per call.
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, model, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func newOllamaBase(args interface{}) (ollamaProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return ollamaProvider{}, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return ollamaProvider{baseURL: baseURL}, nil
}

func createOllamaFactory(args interface{}) (IProvider, error) {
	base, err := newOllamaBase(args)
	if err != nil {
		return nil, err
	}
	return &base, nil
}

func createOllamaEmbedFactory(args interface{}) (IEmbedProvider, error) {
	base, err := newOllamaBase(args)
	if err != nil {
		return nil, err
	}
	return &ollamaEmbedProvider{ollamaProvider: base}, nil
}

func init() {
	Register("ollama", createOllamaFactory)
	RegisterEmbed("ollama", createOllamaEmbedFactory)
}
