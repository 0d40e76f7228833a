package app

import (
	"errors"
	"strings"

	"snap-solver/api/internal/camera"
	"snap-solver/api/internal/capture"
	"snap-solver/api/internal/solver"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrNoAPIKey          = solver.ErrNoAPIKey
	ErrInference         = errors.New("inference request failed")
	ErrBusy              = errors.New("a request is already in progress")
	ErrNoCropper         = capture.ErrNoCropper
	ErrBadImage          = errors.New("unreadable image")
	ErrEmptyText         = errors.New("message is empty")
	ErrUnknownSubject    = errors.New("unknown subject")
)

const (
	ThinkingText  = "Thinking…"
	SavedText     = "Saved"
	ClearedText   = "History cleared"
	noKeyText     = "Add your Gemini API key in Profile."
	chatFailText  = "Request failed."
	solveFailText = "Gemini request failed."
)

// Notice is the short user-facing text for err.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCameraUnavailable), errors.Is(err, camera.ErrUnavailable), errors.Is(err, camera.ErrBusy):
		return "Camera unavailable. You can upload from gallery."
	case errors.Is(err, ErrNoAPIKey):
		return noKeyText
	case errors.Is(err, ErrBusy):
		return "Still working on the previous request."
	case errors.Is(err, ErrNoCropper):
		return "Nothing to crop. Take or upload a photo first."
	case errors.Is(err, ErrBadImage), errors.Is(err, capture.ErrEmptyImage):
		return "Could not read that image."
	case errors.Is(err, ErrEmptyText):
		return "Type a message first."
	case errors.Is(err, ErrUnknownSubject):
		return "Pick one of: " + strings.Join(Subjects, ", ") + "."
	case errors.Is(err, ErrInference):
		return solveFailText
	default:
		return "Something went wrong."
	}
}
