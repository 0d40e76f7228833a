// Package app holds the per-owner application state and the update
// functions both user surfaces drive it through.
package app

import (
	"slices"
	"strings"
	"sync"
	"time"

	"snap-solver/api/internal/capture"
	"snap-solver/api/internal/geom"
)

type Tab string

const (
	TabHome    Tab = "home"
	TabExplore Tab = "explore"
	TabProfile Tab = "profile"
)

func ParseTab(s string) (Tab, bool) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case TabHome, TabExplore, TabProfile:
		return t, true
	}
	return "", false
}

type Mode string

const (
	ModeCamera Mode = "camera"
	ModeChat   Mode = "chat"
)

func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCamera, ModeChat:
		return m, true
	}
	return "", false
}

const DefaultSubject = "General"

// Subjects are the chips offered on the home page, in display order.
var Subjects = []string{DefaultSubject, "Math", "Physics", "Chemistry", "Biology", "History", "Language"}

// NormalizeSubject maps s onto a known chip, case-insensitively.
func NormalizeSubject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, sub := range Subjects {
		if strings.EqualFold(sub, s) {
			return sub, true
		}
	}
	return "", false
}

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// maxTranscript bounds the in-memory chat view per owner.
const maxTranscript = 200

// State is one owner's view of the application. All fields are guarded by mu;
// callers only ever see copies through View.
type State struct {
	mu sync.Mutex

	tab      Tab
	mode     Mode
	subject  string
	pipeline *capture.Pipeline
	messages []Message
	busy     bool
}

func newState(surfaceW, surfaceH int) *State {
	return &State{
		tab:      TabHome,
		mode:     ModeCamera,
		subject:  DefaultSubject,
		pipeline: capture.NewPipeline(surfaceW, surfaceH),
	}
}

func (s *State) appendMessage(role Role, text string, at time.Time) Message {
	m := Message{Role: role, Text: text, At: at}
	s.messages = append(s.messages, m)
	if over := len(s.messages) - maxTranscript; over > 0 {
		s.messages = slices.Delete(s.messages, 0, over)
	}
	return m
}

// View is a read-only snapshot of State.
type View struct {
	Tab      Tab       `json:"tab"`
	Mode     Mode      `json:"mode"`
	Subject  string    `json:"subject"`
	Busy     bool      `json:"busy"`
	Cropping bool      `json:"cropping"`
	Fit      geom.Fit  `json:"fit"`
	Rect     geom.Rect `json:"rect"`
	Messages []Message `json:"messages"`
}

func (s *State) view() View {
	v := View{
		Tab:      s.tab,
		Mode:     s.mode,
		Subject:  s.subject,
		Busy:     s.busy,
		Messages: slices.Clone(s.messages),
	}
	if sess := s.pipeline.Active(); sess != nil {
		v.Cropping = true
		v.Fit = sess.Fit()
		v.Rect = sess.Controller().Rect()
	}
	return v
}
