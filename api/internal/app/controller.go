package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"snap-solver/api/internal/capture"
	"snap-solver/api/internal/crop"
	"snap-solver/api/internal/solver"
	"snap-solver/api/internal/store"
)

type HistoryStore interface {
	Add(ctx context.Context, ownerID int64, image []byte, subject, answer string) (store.Entry, error)
	List(ctx context.Context, ownerID int64) ([]store.Entry, error)
	Clear(ctx context.Context, ownerID int64) (int64, error)
}

type SettingsStore interface {
	Get(ctx context.Context, ownerID int64) (store.Settings, error)
	Save(ctx context.Context, ownerID int64, s store.Settings) error
}

// Camera is the exclusively-owned frame source; *camera.Device satisfies it.
type Camera interface {
	Acquire(ctx context.Context, owner int64) error
	Release(owner int64) error
	Snapshot(ctx context.Context, owner int64) (image.Image, error)
}

// Indicator shows progress while a solve is in flight. The returned func
// removes it.
type Indicator interface {
	ShowThinking(ctx context.Context, owner int64) (hide func())
}

type indicatorKey struct{}

// WithIndicator attaches the surface's progress indicator to ctx.
func WithIndicator(ctx context.Context, ind Indicator) context.Context {
	return context.WithValue(ctx, indicatorKey{}, ind)
}

type nopIndicator struct{}

func (nopIndicator) ShowThinking(context.Context, int64) func() { return func() {} }

func indicatorFrom(ctx context.Context) Indicator {
	if ind, ok := ctx.Value(indicatorKey{}).(Indicator); ok && ind != nil {
		return ind
	}
	return nopIndicator{}
}

type Options struct {
	SurfaceW, SurfaceH int
	Log                *zap.SugaredLogger
	Now                func() time.Time
	// CameraOnDemand holds the camera only for the duration of a Capture
	// instead of while the camera view is open.
	CameraOnDemand bool
}

// TabView is what a tab switch needs to render: history for explore,
// settings for profile.
type TabView struct {
	View
	History  []store.Entry   `json:"history,omitempty"`
	Settings *store.Settings `json:"settings,omitempty"`
}

// Controller owns every per-owner State and is the only writer to it.
type Controller struct {
	history  HistoryStore
	settings SettingsStore
	camera   Camera
	solvers  solver.Factory
	log      *zap.SugaredLogger
	now      func() time.Time

	surfaceW, surfaceH int
	onDemand           bool

	mu     sync.Mutex
	states map[int64]*State
}

func New(history HistoryStore, settings SettingsStore, cam Camera, solvers solver.Factory, opts Options) *Controller {
	if opts.SurfaceW <= 0 || opts.SurfaceH <= 0 {
		opts.SurfaceW, opts.SurfaceH = 300, 300
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		history:  history,
		settings: settings,
		camera:   cam,
		solvers:  solvers,
		log:      opts.Log,
		now:      opts.Now,
		surfaceW: opts.SurfaceW,
		surfaceH: opts.SurfaceH,
		onDemand: opts.CameraOnDemand,
		states:   make(map[int64]*State),
	}
}

func (c *Controller) state(owner int64) *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[owner]
	if !ok {
		st = newState(c.surfaceW, c.surfaceH)
		c.states[owner] = st
	}
	return st
}

func (c *Controller) View(owner int64) View {
	st := c.state(owner)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.view()
}

// --------------------------- navigation ---------------------------

// SwitchTab activates tab. The camera runs only on home in camera mode; a
// camera failure is returned but the tab still switches.
func (c *Controller) SwitchTab(ctx context.Context, owner int64, tab Tab) (TabView, error) {
	st := c.state(owner)
	st.mu.Lock()
	st.tab = tab
	mode := st.mode
	st.mu.Unlock()

	var err error
	if tab == TabHome && mode == ModeCamera && !c.onDemand {
		err = c.startCamera(ctx, owner)
	} else {
		c.stopCamera(owner)
	}

	out := TabView{}
	switch tab {
	case TabExplore:
		h, herr := c.History(ctx, owner)
		err = multierr.Append(err, herr)
		out.History = h
	case TabProfile:
		s, serr := c.Settings(ctx, owner)
		if serr == nil {
			out.Settings = &s
		}
		err = multierr.Append(err, serr)
	}
	out.View = c.View(owner)
	return out, err
}

// SwitchMode toggles the home page between the camera and the chat view.
func (c *Controller) SwitchMode(ctx context.Context, owner int64, mode Mode) (View, error) {
	st := c.state(owner)
	st.mu.Lock()
	st.mode = mode
	onHome := st.tab == TabHome
	st.mu.Unlock()

	var err error
	if mode == ModeCamera && onHome && !c.onDemand {
		err = c.startCamera(ctx, owner)
	} else {
		c.stopCamera(owner)
	}
	return c.View(owner), err
}

func (c *Controller) SelectSubject(owner int64, subject string) (View, error) {
	sub, ok := NormalizeSubject(subject)
	if !ok {
		return c.View(owner), fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}
	st := c.state(owner)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subject = sub
	return st.view(), nil
}

func (c *Controller) startCamera(ctx context.Context, owner int64) error {
	if c.camera == nil {
		return ErrCameraUnavailable
	}
	if err := c.camera.Acquire(ctx, owner); err != nil {
		c.log.Warnf("camera acquire owner=%d: %v", owner, err)
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	return nil
}

func (c *Controller) stopCamera(owner int64) {
	if c.camera == nil {
		return
	}
	if err := c.camera.Release(owner); err != nil {
		c.log.Warnf("camera release owner=%d: %v", owner, err)
	}
}

// Close releases the camera for every known owner.
func (c *Controller) Close() error {
	c.mu.Lock()
	owners := make([]int64, 0, len(c.states))
	for id := range c.states {
		owners = append(owners, id)
	}
	c.mu.Unlock()

	if c.camera == nil {
		return nil
	}
	var err error
	for _, id := range owners {
		err = multierr.Append(err, c.camera.Release(id))
	}
	return err
}

// --------------------------- capture ---------------------------

// Capture grabs a camera frame and opens the cropper on it.
func (c *Controller) Capture(ctx context.Context, owner int64) (View, error) {
	st := c.state(owner)
	st.mu.Lock()
	if st.busy {
		st.mu.Unlock()
		return View{}, ErrBusy
	}
	st.tab, st.mode = TabHome, ModeCamera
	st.mu.Unlock()

	if err := c.startCamera(ctx, owner); err != nil {
		return c.View(owner), err
	}
	if c.onDemand {
		defer c.stopCamera(owner)
	}
	img, err := c.camera.Snapshot(ctx, owner)
	if err != nil {
		c.log.Warnf("camera snapshot owner=%d: %v", owner, err)
		return c.View(owner), fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	return c.openCropper(st, img)
}

// Upload opens the cropper on a user-supplied photo.
func (c *Controller) Upload(owner int64, data []byte) (View, error) {
	st := c.state(owner)
	st.mu.Lock()
	busy := st.busy
	st.mu.Unlock()
	if busy {
		return View{}, ErrBusy
	}

	img, err := capture.Decode(data)
	if err != nil {
		return c.View(owner), fmt.Errorf("%w: %w", ErrBadImage, err)
	}
	return c.openCropper(st, img)
}

func (c *Controller) openCropper(st *State, img image.Image) (View, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.busy {
		return st.view(), ErrBusy
	}
	if _, err := st.pipeline.OpenCropper(img); err != nil {
		return st.view(), fmt.Errorf("%w: %w", ErrBadImage, err)
	}
	return st.view(), nil
}

// --------------------------- crop gestures ---------------------------

func (c *Controller) withSession(owner int64, fn func(s *capture.Session)) (View, error) {
	st := c.state(owner)
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.pipeline.Active()
	if s == nil {
		return st.view(), ErrNoCropper
	}
	fn(s)
	return st.view(), nil
}

func (c *Controller) PointerDown(owner int64, p crop.Point) (View, error) {
	return c.withSession(owner, func(s *capture.Session) { s.Controller().PointerDown(p) })
}

// PointerMove reports whether the rectangle moved.
func (c *Controller) PointerMove(owner int64, p crop.Point) (bool, error) {
	var moved bool
	_, err := c.withSession(owner, func(s *capture.Session) { moved = s.Controller().PointerMove(p) })
	return moved, err
}

func (c *Controller) PointerUp(owner int64) (View, error) {
	return c.withSession(owner, func(s *capture.Session) { s.Controller().PointerUp() })
}

// Nudge moves the rectangle by one complete drag gesture of (dx, dy).
func (c *Controller) Nudge(owner int64, dx, dy float64) (View, error) {
	return c.withSession(owner, func(s *capture.Session) { s.Controller().Nudge(dx, dy) })
}

// Preview renders the open crop session as PNG.
func (c *Controller) Preview(owner int64) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	_, serr := c.withSession(owner, func(s *capture.Session) { data, err = s.RenderPNG() })
	if serr != nil {
		return nil, serr
	}
	return data, err
}

func (c *Controller) CancelCrop(owner int64) View {
	st := c.state(owner)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pipeline.CancelCrop()
	return st.view()
}

// --------------------------- inference ---------------------------

func (c *Controller) begin(st *State) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.busy {
		return ErrBusy
	}
	st.busy = true
	return nil
}

func (c *Controller) end(st *State) {
	st.mu.Lock()
	st.busy = false
	st.mu.Unlock()
}

// ConfirmCrop extracts the selected region at source resolution, closes the
// cropper and asks the solver about it. On success the answer is appended to
// the transcript and to history, and the home page switches to chat.
func (c *Controller) ConfirmCrop(ctx context.Context, owner int64) (Message, error) {
	st := c.state(owner)
	st.mu.Lock()
	if st.busy {
		st.mu.Unlock()
		return Message{}, ErrBusy
	}
	data, img, err := st.pipeline.ConfirmCrop()
	if err != nil {
		st.mu.Unlock()
		return Message{}, err
	}
	subject := st.subject
	st.busy = true
	st.mu.Unlock()
	defer c.end(st)

	set, err := c.settings.Get(ctx, owner)
	if err != nil {
		return Message{}, fmt.Errorf("%w: load settings: %w", ErrInference, err)
	}
	if strings.TrimSpace(set.APIKey) == "" {
		return Message{}, ErrNoAPIKey
	}

	hide := indicatorFrom(ctx).ShowThinking(ctx, owner)
	cl := c.solvers(set.APIKey, set.Model)
	answer, err := cl.Solve(ctx, solver.Request{Image: data, MIME: "image/png", Subject: subject})
	hide()
	if err != nil {
		c.log.Errorf("solve owner=%d model=%s: %v", owner, cl.GetModel(), err)
		if errors.Is(err, solver.ErrNoAPIKey) {
			return Message{}, ErrNoAPIKey
		}
		return Message{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	st.mu.Lock()
	msg := st.appendMessage(RoleBot, answer, c.now())
	st.mu.Unlock()

	thumb, err := capture.Thumbnail(img)
	if err != nil {
		c.log.Warnf("thumbnail owner=%d: %v", owner, err)
		thumb = data
	}
	if _, err := c.history.Add(ctx, owner, thumb, subject, answer); err != nil {
		c.log.Errorf("history add owner=%d: %v", owner, err)
	}

	if _, err := c.SwitchMode(ctx, owner, ModeChat); err != nil {
		c.log.Warnf("switch to chat owner=%d: %v", owner, err)
	}
	return msg, nil
}

// Chat sends a text-only follow-up. A missing key or a failed request is
// reported as a bot message, not as an error.
func (c *Controller) Chat(ctx context.Context, owner int64, text string) ([]Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	st := c.state(owner)
	if err := c.begin(st); err != nil {
		return nil, err
	}
	defer c.end(st)

	st.mu.Lock()
	user := st.appendMessage(RoleUser, text, c.now())
	st.mu.Unlock()

	reply := c.chatReply(ctx, owner, text)

	st.mu.Lock()
	bot := st.appendMessage(RoleBot, reply, c.now())
	st.mu.Unlock()
	return []Message{user, bot}, nil
}

func (c *Controller) chatReply(ctx context.Context, owner int64, text string) string {
	set, err := c.settings.Get(ctx, owner)
	if err != nil {
		c.log.Errorf("chat settings owner=%d: %v", owner, err)
		return chatFailText
	}
	if strings.TrimSpace(set.APIKey) == "" {
		return noKeyText
	}
	reply, err := c.solvers(set.APIKey, set.Model).Chat(ctx, text)
	if err != nil {
		c.log.Errorf("chat owner=%d: %v", owner, err)
		if errors.Is(err, solver.ErrNoAPIKey) {
			return noKeyText
		}
		return chatFailText
	}
	return reply
}

// --------------------------- history / settings ---------------------------

func (c *Controller) History(ctx context.Context, owner int64) ([]store.Entry, error) {
	h, err := c.history.List(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return h, nil
}

func (c *Controller) ClearHistory(ctx context.Context, owner int64) (int64, error) {
	n, err := c.history.Clear(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	c.log.Infof("history cleared owner=%d removed=%d", owner, n)
	return n, nil
}

func (c *Controller) Settings(ctx context.Context, owner int64) (store.Settings, error) {
	s, err := c.settings.Get(ctx, owner)
	if err != nil {
		return store.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// SaveSettings persists s and returns the effective settings.
func (c *Controller) SaveSettings(ctx context.Context, owner int64, s store.Settings) (store.Settings, error) {
	if err := c.settings.Save(ctx, owner, s); err != nil {
		return store.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return c.Settings(ctx, owner)
}
