package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/freshness/internal/classifier"
	"github.com/phrazzld/freshness/internal/config"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

//go:embed prompts/classify.tmpl
var defaultPrompt string

// defaultRetryDelay applies when the configured delay is not positive.
const defaultRetryDelay = 2 * time.Second

// ContentGenerator is the slice of the genai client the classifier uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Classifier implements classifier.Classifier with a Gemini model.
type Classifier struct {
	logger     *slog.Logger
	models     ContentGenerator
	model      string
	prompt     *template.Template
	maxRetries int
	retryDelay time.Duration
}

var _ classifier.Classifier = (*Classifier)(nil)

// promptData is passed to the prompt template.
type promptData struct {
	classifier.Input
	Categories []string
}

// LoadPrompt returns the prompt template text: inline wins over a file
// path, and the embedded default is used when both are empty.
func LoadPrompt(inline, path string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if path == "" {
		return defaultPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read prompt template from %s: %v",
			classifier.ErrInvalidConfig, path, err)
	}
	return string(b), nil
}

// New creates a Classifier backed by a genai client for the Gemini API.
func New(ctx context.Context, l *slog.Logger, cfg config.LLMConfig, promptText string) (*Classifier, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", classifier.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", classifier.ErrInvalidConfig, err)
	}
	return NewWithGenerator(l, client.Models, cfg, promptText)
}

// NewWithGenerator creates a Classifier over an arbitrary ContentGenerator.
func NewWithGenerator(
	l *slog.Logger,
	models ContentGenerator,
	cfg config.LLMConfig,
	promptText string,
) (*Classifier, error) {
	if l == nil {
		l = slog.Default()
	}
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", classifier.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", classifier.ErrInvalidConfig)
	}
	if promptText == "" {
		promptText = defaultPrompt
	}

	tmpl, err := template.New("classify").
		Funcs(template.FuncMap{"join": strings.Join}).
		Option("missingkey=error").
		Parse(promptText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", classifier.ErrInvalidConfig, err)
	}

	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &Classifier{
		logger:     l.With(slog.String("component", "gemini_classifier")),
		models:     models,
		model:      cfg.ModelName,
		prompt:     tmpl,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: delay,
	}, nil
}

// Classify implements classifier.Classifier.
func (c *Classifier) Classify(ctx context.Context, in classifier.Input) (*classifier.Response, error) {
	prompt, err := c.renderPrompt(in)
	if err != nil {
		return nil, err
	}

	backoff := retry.NewExponential(c.retryDelay)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(uint64(c.maxRetries), backoff)

	var (
		out     *classifier.Response
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, err := c.call(ctx, prompt)
		if err == nil {
			out = resp
			return nil
		}
		if errors.Is(err, classifier.ErrTransient) && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "gemini call failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, classifier.ErrTransient) {
			return nil, fmt.Errorf("%w: %w", classifier.ErrTransient, ctxErr)
		}
		return nil, err
	}

	c.logger.DebugContext(ctx, "gemini classification received",
		slog.Int("attempts", attempt),
		slog.String("action", out.Action))
	return out, nil
}

func (c *Classifier) renderPrompt(in classifier.Input) (string, error) {
	var buf bytes.Buffer
	data := promptData{Input: in, Categories: domain.Categories}
	if err := c.prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// call makes one request and maps the outcome onto classifier errors.
func (c *Classifier) call(ctx context.Context, prompt string) (*classifier.Response, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", classifier.ErrTransient, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", classifier.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked: %s", classifier.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", classifier.ErrInvalidResponse)
	}
	if cand := resp.Candidates[0]; cand != nil && cand.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: response blocked by safety filters", classifier.ErrContentBlocked)
	}

	return ParseResponse(candidateText(resp.Candidates[0]))
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ParseResponse decodes the model's JSON answer. Markdown code fences the
// model sometimes adds despite JSON mode are stripped first.
func ParseResponse(text string) (*classifier.Response, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", classifier.ErrInvalidResponse)
	}

	var out classifier.Response
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", classifier.ErrInvalidResponse, err)
	}
	return &out, nil
}
