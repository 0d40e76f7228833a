package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snap-solver/api/internal/solver"
)

func TestTextOrRaw_JoinsPartsInOrder(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("Step 1: 2x = 6\n"),
				&genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text("Answer: x = 3"),
			}},
		}},
	}

	assert.Equal(t, "Step 1: 2x = 6\nAnswer: x = 3", textOrRaw(resp))
}

func TestTextOrRaw_FallsBackToRaw(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	}

	out := textOrRaw(resp)
	require.NotEmpty(t, out)
	assert.Contains(t, out, "PromptFeedback")

	assert.Equal(t, "null", textOrRaw(nil))
}

func TestTextOrRaw_EmptyCandidateContent(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Index: 0}}}

	assert.Contains(t, textOrRaw(resp), "Candidates")
}

func TestEngine_NoAPIKeyShortCircuits(t *testing.T) {
	e := New("  ", "gemini-2.5-flash")

	_, err := e.Solve(context.Background(), solver.Request{Image: []byte{0x89, 'P', 'N', 'G'}, Subject: "Math"})
	assert.ErrorIs(t, err, solver.ErrNoAPIKey)

	_, err = e.Chat(context.Background(), "hi")
	assert.ErrorIs(t, err, solver.ErrNoAPIKey)
}

func TestFactory(t *testing.T) {
	c := Factory()("key", " gemini-1.5-flash ")

	assert.Equal(t, "gemini", c.Name())
	assert.Equal(t, "gemini-1.5-flash", c.GetModel())
}

func TestGenerate_BlockedReplyIsReturnedRaw(t *testing.T) {
	e := New("key", "gemini-2.5-flash")
	e.call = func(context.Context, []genai.Part) (*genai.GenerateContentResponse, error) {
		return nil, &genai.BlockedError{
			PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
		}
	}

	out, err := e.Solve(context.Background(), solver.Request{Image: []byte{0x89, 'P', 'N', 'G'}, Subject: "Math"})
	require.NoError(t, err)
	assert.Contains(t, out, "PromptFeedback")
}

func TestGenerate_TransportErrorFails(t *testing.T) {
	e := New("key", "gemini-2.5-flash")
	boom := errors.New("connection reset")
	e.call = func(context.Context, []genai.Part) (*genai.GenerateContentResponse, error) {
		return nil, boom
	}

	_, err := e.Chat(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "gemini chat")
}

func TestGenerate_SendsPromptAndImage(t *testing.T) {
	e := New("key", "gemini-2.5-flash")
	var got []genai.Part
	e.call = func(_ context.Context, parts []genai.Part) (*genai.GenerateContentResponse, error) {
		got = parts
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("x = 3")}},
		}}}, nil
	}

	out, err := e.Solve(context.Background(), solver.Request{Image: []byte("img"), MIME: "image/png", Subject: "Math"})
	require.NoError(t, err)
	assert.Equal(t, "x = 3", out)
	require.Len(t, got, 2)
	assert.Equal(t, genai.Text(solver.Prompt("Math")), got[0])
	assert.Equal(t, &genai.Blob{MIMEType: "image/png", Data: []byte("img")}, got[1])
}
