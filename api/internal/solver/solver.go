// Package solver is the inference client used to analyse cropped problems.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNoAPIKey = errors.New("api key is empty")

// Request is one photo-solving call.
type Request struct {
	Image   []byte
	MIME    string // empty means sniff from Image
	Subject string
}

type Client interface {
	Name() string
	GetModel() string
	Solve(ctx context.Context, req Request) (string, error)
	Chat(ctx context.Context, text string) (string, error)
}

// Factory builds a client for the credential and model stored in a user's
// settings.
type Factory func(apiKey, model string) Client

// Prompt is the instruction sent together with the image.
func Prompt(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "General"
	}
	return fmt.Sprintf("You are an expert %s tutor. Analyze the image and solve the problem. "+
		"Provide step-by-step reasoning and a final concise answer.", subject)
}
