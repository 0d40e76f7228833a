package handle

import (
	"errors"
	"net/http"
	"strings"

	"snap-solver/api/internal/app"
	"snap-solver/api/internal/crop"
	"snap-solver/api/internal/store"
	"snap-solver/api/internal/util"
)

type settingsView struct {
	APIKey    string `json:"api_key"`
	HasAPIKey bool   `json:"has_api_key"`
	Model     string `json:"model"`
}

// maskSettings never echoes a credential back to the client.
func maskSettings(s store.Settings) settingsView {
	return settingsView{
		APIKey:    util.MaskSecret(s.APIKey),
		HasAPIKey: strings.TrimSpace(s.APIKey) != "",
		Model:     s.Model,
	}
}

type cropResponse struct {
	app.View
	Preview []byte `json:"preview,omitempty"`
}

// cropView answers with the state and, while cropping, the rendered preview.
func (h *Handle) cropView(w http.ResponseWriter, r *http.Request, id int64, v app.View) {
	out := cropResponse{View: v}
	if v.Cropping {
		png, err := h.app.Preview(id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out.Preview = png
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) State(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	writeJSON(w, http.StatusOK, h.app.View(id))
}

func (h *Handle) Tab(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		Tab string `json:"tab"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	tab, ok := app.ParseTab(req.Tab)
	if !ok {
		badRequest(w, "tab must be home, explore or profile")
		return
	}
	tv, err := h.app.SwitchTab(r.Context(), id, tab)
	if err != nil && !errors.Is(err, app.ErrCameraUnavailable) {
		h.writeError(w, r, err)
		return
	}
	// camera trouble does not block navigation
	out := struct {
		app.View
		History  []store.Entry `json:"history,omitempty"`
		Settings *settingsView `json:"settings,omitempty"`
		Notice   string        `json:"notice,omitempty"`
	}{View: tv.View, History: tv.History, Notice: app.Notice(err)}
	if tv.Settings != nil {
		sv := maskSettings(*tv.Settings)
		out.Settings = &sv
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) Mode(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	mode, ok := app.ParseMode(req.Mode)
	if !ok {
		badRequest(w, "mode must be camera or chat")
		return
	}
	v, err := h.app.SwitchMode(r.Context(), id, mode)
	writeJSON(w, http.StatusOK, struct {
		app.View
		Notice string `json:"notice,omitempty"`
	}{v, app.Notice(err)})
}

func (h *Handle) Subject(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		Subject string `json:"subject"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	v, err := h.app.SelectSubject(id, req.Subject)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --------------------------- crop ---------------------------

func (h *Handle) Capture(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	v, err := h.app.Capture(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cropView(w, r, id, v)
}

func (h *Handle) CropState(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	h.cropView(w, r, id, h.app.View(id))
}

func (h *Handle) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		ImageB64 string `json:"image_b64"`
	}
	if err := decode(w, r, &req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		badRequest(w, "bad json: "+err.Error())
		return
	}
	img, _, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(img) == 0 {
		badRequest(w, "bad image_b64")
		return
	}
	v, err := h.app.Upload(id, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cropView(w, r, id, v)
}

func (h *Handle) Drag(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	v, err := h.app.Nudge(id, req.DX, req.DY)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cropView(w, r, id, v)
}

// Pointer forwards raw pointer events (down, move, up, cancel) in canvas
// coordinates.
func (h *Handle) Pointer(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		Phase string  `json:"phase"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	p := crop.Point{X: req.X, Y: req.Y}
	var (
		v   app.View
		err error
	)
	switch req.Phase {
	case "down":
		v, err = h.app.PointerDown(id, p)
	case "move":
		if _, err = h.app.PointerMove(id, p); err == nil {
			v = h.app.View(id)
		}
	case "up", "cancel":
		v, err = h.app.PointerUp(id)
	default:
		badRequest(w, "phase must be down, move, up or cancel")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cropView(w, r, id, v)
}

func (h *Handle) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		Subject string `json:"subject"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	if req.Subject != "" {
		if _, err := h.app.SelectSubject(id, req.Subject); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	msg, err := h.app.ConfirmCrop(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (h *Handle) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	writeJSON(w, http.StatusOK, h.app.CancelCrop(id))
}

// --------------------------- chat ---------------------------

func (h *Handle) Chat(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	msgs, err := h.app.Chat(ctx, id, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// --------------------------- history / settings ---------------------------

func (h *Handle) History(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	entries, err := h.app.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *Handle) ClearHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	n, err := h.app.ClearHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n, "notice": app.ClearedText})
}

func (h *Handle) GetSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	s, err := h.app.Settings(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, maskSettings(s))
}

func (h *Handle) PutSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(r)
	if !ok {
		badRequest(w, "bad X-Owner-ID")
		return
	}
	var req store.Settings
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return
	}
	cur, err := h.app.Settings(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// the client echoes the mask when the key was left untouched
	if cur.APIKey != "" && strings.TrimSpace(req.APIKey) == util.MaskSecret(cur.APIKey) {
		req.APIKey = cur.APIKey
	}
	s, err := h.app.SaveSettings(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		settingsView
		Notice string `json:"notice"`
	}{maskSettings(s), app.SavedText})
}
