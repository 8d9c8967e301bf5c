package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"go.aimuz.me/saathi/internal/types"
)

// geminiCompleter implements Completer for the Gemini API.
type geminiCompleter struct {
	cfg completerConfig

	once      sync.Once
	client    *genai.Client
	clientErr error
}

func newGeminiCompleter(cfg completerConfig) *geminiCompleter {
	return &geminiCompleter{cfg: cfg}
}

// connect builds the client on first use; genai.NewClient needs a context.
func (c *geminiCompleter) connect(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:     c.cfg.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.cfg.http,
		}
		if c.cfg.baseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.baseURL}
		}
		c.client, c.clientErr = genai.NewClient(ctx, cc)
	})
	return c.client, c.clientErr
}

// request converts messages into Gemini contents and generation settings.
// System messages become the system instruction.
func (c *geminiCompleter) request(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.cfg.temperature)),
	}
	if c.cfg.maxTokens > 0 {
		gc.MaxOutputTokens = int32(c.cfg.maxTokens)
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if c.cfg.disableThinking {
		gc.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(0))}
	}
	return contents, gc
}

func (c *geminiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("create client: %w", err)
	}

	contents, gc := c.request(messages)

	resp, err := client.Models.GenerateContent(ctx, c.cfg.model, contents, gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", types.Usage{}, &APIError{Provider: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return "", types.Usage{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", types.Usage{}, fmt.Errorf("no content returned")
	}

	var usage types.Usage
	if md := resp.UsageMetadata; md != nil {
		usage = types.Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}

	return text, usage, nil
}
