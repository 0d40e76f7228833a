package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"snap-solver/api/internal/solver"
	"snap-solver/api/internal/util"
)

type Engine struct {
	APIKey string
	Model  string

	opts []option.ClientOption
	// call performs the request; tests swap it out.
	call func(ctx context.Context, parts []genai.Part) (*genai.GenerateContentResponse, error)
}

func New(apiKey, model string, opts ...option.ClientOption) *Engine {
	e := &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		opts:   opts,
	}
	e.call = e.remote
	return e
}

// Factory adapts New to solver.Factory.
func Factory(opts ...option.ClientOption) solver.Factory {
	return func(apiKey, model string) solver.Client {
		return New(apiKey, model, opts...)
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// --------------------------- SOLVE ---------------------------

// Solve sends the subject instruction and the image as one user turn.
func (e *Engine) Solve(ctx context.Context, req solver.Request) (string, error) {
	mime := util.PickMIME(req.MIME, "", req.Image)
	return e.generate(ctx, "solve",
		genai.Text(solver.Prompt(req.Subject)),
		&genai.Blob{MIMEType: mime, Data: req.Image},
	)
}

// --------------------------- CHAT ---------------------------

// Chat sends a free-text follow-up with no image.
func (e *Engine) Chat(ctx context.Context, text string) (string, error) {
	return e.generate(ctx, "chat", genai.Text(text))
}

func (e *Engine) generate(ctx context.Context, op string, parts ...genai.Part) (string, error) {
	if e.APIKey == "" {
		return "", solver.ErrNoAPIKey
	}
	resp, err := e.call(ctx, parts)
	if err != nil {
		// blocked replies are still shown to the user as raw output
		var be *genai.BlockedError
		if errors.As(err, &be) {
			return rawJSON(be), nil
		}
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	return textOrRaw(resp), nil
}

func (e *Engine) remote(ctx context.Context, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	defer cl.Close()

	return cl.GenerativeModel(e.Model).GenerateContent(ctx, parts...)
}

// --------------------------- helpers ---------------------------

// textOrRaw joins the text parts of the first candidate in order. When the
// response carries no text (blocked, empty, an unexpected shape) the raw
// response is serialised instead so the user still sees what came back.
func textOrRaw(resp *genai.GenerateContentResponse) string {
	if t := joinText(resp); t != "" {
		return t
	}
	return rawJSON(resp)
}

func rawJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(raw)
}

func joinText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
