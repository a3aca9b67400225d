package ai

import (
	"context"
	"fmt"
	"strings"
)

// templateProvider is the deterministic last-resort backend. It never
// fails: it quotes the question back to the user with an explanation
// that no model was reachable.
type templateProvider struct{}

func (p *templateProvider) Name() string {
	return "template"
}

func (p *templateProvider) Available() bool {
	return true
}

func (p *templateProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	_ = ctx
	_ = model
	question := extractQuestion(prompt)
	return fmt.Sprintf("I understand you're asking about: %s. However, no AI model is currently reachable to produce a detailed answer. Please check that a local model is running or that an API key is configured.", question), nil
}

func extractQuestion(prompt string) string {
	marker := strings.LastIndex(prompt, "Question:")
	if marker < 0 {
		return "your question"
	}
	rest := prompt[marker+len("Question:"):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	question := strings.TrimSpace(rest)
	if question == "" {
		return "your question"
	}
	return question
}

func createTemplateFactory(args interface{}) (IProvider, error) {
	_ = args
	return &templateProvider{}, nil
}

func init() {
	Register("template", createTemplateFactory)
}
