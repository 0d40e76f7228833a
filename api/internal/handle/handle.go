package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"snap-solver/api/internal/app"
)

// Pinger reports database health for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handle struct {
	app *app.Controller
	db  Pinger
	log *zap.SugaredLogger
}

func New(ctl *app.Controller, db Pinger, log *zap.SugaredLogger) *Handle {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handle{app: ctl, db: db, log: log}
}

// Register mounts the API on mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)

	mux.HandleFunc("GET /v1/state", h.State)
	mux.HandleFunc("POST /v1/tab", h.Tab)
	mux.HandleFunc("POST /v1/mode", h.Mode)
	mux.HandleFunc("POST /v1/subject", h.Subject)

	mux.HandleFunc("POST /v1/capture", h.Capture)
	mux.HandleFunc("GET /v1/crop", h.CropState)
	mux.HandleFunc("POST /v1/crop", h.Upload)
	mux.HandleFunc("POST /v1/crop/drag", h.Drag)
	mux.HandleFunc("POST /v1/crop/pointer", h.Pointer)
	mux.HandleFunc("POST /v1/crop/confirm", h.Confirm)
	mux.HandleFunc("DELETE /v1/crop", h.Cancel)

	mux.HandleFunc("POST /v1/chat", h.Chat)

	mux.HandleFunc("GET /v1/history", h.History)
	mux.HandleFunc("DELETE /v1/history", h.ClearHistory)
	mux.HandleFunc("GET /v1/settings", h.GetSettings)
	mux.HandleFunc("PUT /v1/settings", h.PutSettings)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrBusy), errors.Is(err, app.ErrNoCropper):
		return http.StatusConflict
	case errors.Is(err, app.ErrBadImage), errors.Is(err, app.ErrEmptyText), errors.Is(err, app.ErrUnknownSubject):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNoAPIKey):
		return http.StatusPreconditionFailed
	case errors.Is(err, app.ErrCameraUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handle) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "notice": app.Notice(err)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// owner reads X-Owner-ID; missing means the anonymous owner 0.
func owner(r *http.Request) (int64, bool) {
	s := strings.TrimSpace(r.Header.Get("X-Owner-ID"))
	if s == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// requestContext applies X-Request-Timeout (seconds) or ?timeoutSec=, with
// a 180s default.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := 180 * time.Second
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
// maxBody bounds request bodies; it fits a base64 photo of Telegram's 20MB
// download limit.
var maxBody int64 = 28 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db down", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
