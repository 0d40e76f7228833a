package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snap-solver/api/internal/app"
	"snap-solver/api/internal/camera"
	"snap-solver/api/internal/solver"
	"snap-solver/api/internal/store"
	"snap-solver/api/internal/util"
)

type stubClient struct {
	answer string
	err    error
}

func (s stubClient) Name() string     { return "stub" }
func (s stubClient) GetModel() string { return "stub-model" }
func (s stubClient) Solve(context.Context, solver.Request) (string, error) {
	return s.answer, s.err
}
func (s stubClient) Chat(_ context.Context, text string) (string, error) {
	return "echo: " + text, s.err
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("connection refused") }

func newServer(t *testing.T, defaultKey string, cl stubClient) http.Handler {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctl := app.New(
		store.NewHistoryRepo(db),
		store.NewSettingsRepo(db, store.Settings{APIKey: defaultKey, Model: "gemini-2.5-flash"}),
		camera.NewDevice(nil),
		func(string, string) solver.Client { return cl },
		app.Options{SurfaceW: 300, SurfaceH: 300},
	)
	mux := http.NewServeMux()
	New(ctl, db, nil).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body, owner string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func photoB64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return util.MakeDataURL("image/png", buf.Bytes())
}

func TestHealthz(t *testing.T) {
	h := newServer(t, "", stubClient{})
	rec, out := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	mux := http.NewServeMux()
	New(nil, downDB{}, nil).Register(mux)
	rec, _ = do(t, mux, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCropFlow(t *testing.T) {
	h := newServer(t, "server-key", stubClient{answer: "The answer is 42."})

	rec, out := do(t, h, http.MethodPost, "/v1/crop", `{"image_b64":"`+photoB64(t, 1080, 1440)+`"}`, "5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["cropping"])
	assert.NotEmpty(t, out["preview"])
	rect := out["rect"].(map[string]any)
	assert.Equal(t, 23.0, rect["x"])

	rec, out = do(t, h, http.MethodPost, "/v1/crop/drag", `{"dx":1000,"dy":0}`, "5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45.0, out["rect"].(map[string]any)["x"])

	rec, out = do(t, h, http.MethodPost, "/v1/crop/pointer", `{"phase":"down","x":100,"y":100}`, "5")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/v1/crop/pointer", `{"phase":"move","x":90,"y":100}`, "5")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, out = do(t, h, http.MethodPost, "/v1/crop/pointer", `{"phase":"up"}`, "5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 35.0, out["rect"].(map[string]any)["x"])

	rec, out = do(t, h, http.MethodPost, "/v1/crop/confirm", `{"subject":"chemistry"}`, "5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg := out["message"].(map[string]any)
	assert.Equal(t, "bot", msg["role"])
	assert.Equal(t, "The answer is 42.", msg["text"])

	rec, out = do(t, h, http.MethodGet, "/v1/state", "", "5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat", out["mode"])
	assert.Equal(t, "Chemistry", out["subject"])
	assert.Equal(t, false, out["cropping"])

	rec, out = do(t, h, http.MethodGet, "/v1/history", "", "5")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := out["history"].([]any)
	require.Len(t, hist, 1)
	assert.Equal(t, "Chemistry", hist[0].(map[string]any)["subject"])

	// other owners see nothing
	_, out = do(t, h, http.MethodGet, "/v1/history", "", "6")
	assert.Empty(t, out["history"])

	rec, out = do(t, h, http.MethodDelete, "/v1/history", "", "5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["removed"])
	assert.Equal(t, "History cleared", out["notice"])
}

func TestConfirm_Errors(t *testing.T) {
	h := newServer(t, "", stubClient{answer: "x"})

	rec, out := do(t, h, http.MethodPost, "/v1/crop/confirm", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Nothing to crop. Take or upload a photo first.", out["notice"])

	rec, _ = do(t, h, http.MethodPost, "/v1/crop", `{"image_b64":"`+photoB64(t, 40, 40)+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, out = do(t, h, http.MethodPost, "/v1/crop/confirm", "", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "Add your Gemini API key in Profile.", out["notice"])

	h = newServer(t, "k", stubClient{err: errors.New("quota")})
	do(t, h, http.MethodPost, "/v1/crop", `{"image_b64":"`+photoB64(t, 40, 40)+`"}`, "")
	rec, out = do(t, h, http.MethodPost, "/v1/crop/confirm", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Gemini request failed.", out["notice"])
}

func TestBadRequests(t *testing.T) {
	h := newServer(t, "", stubClient{})

	rec, _ := do(t, h, http.MethodPost, "/v1/crop", `{"image_b64":"!!!"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := do(t, h, http.MethodPost, "/v1/crop", `{"image_b64":"`+util.MakeDataURL("image/png", []byte("nope"))+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Could not read that image.", out["notice"])

	rec, _ = do(t, h, http.MethodGet, "/v1/state", "", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/tab", `{"tab":"settings"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/subject", `{"subject":"Art"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/crop/drag", `{"dx":1}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/chat", `{"text":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/crop/pointer", `{"phase":"hover"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTabAndMode_CameraUnavailableIsANotice(t *testing.T) {
	h := newServer(t, "", stubClient{})

	rec, out := do(t, h, http.MethodPost, "/v1/tab", `{"tab":"home"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Camera unavailable. You can upload from gallery.", out["notice"])

	rec, out = do(t, h, http.MethodPost, "/v1/capture", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Camera unavailable. You can upload from gallery.", out["notice"])

	rec, out = do(t, h, http.MethodPost, "/v1/mode", `{"mode":"chat"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat", out["mode"])
	assert.Nil(t, out["notice"])
}

func TestSettings_MaskedKey(t *testing.T) {
	h := newServer(t, "", stubClient{})

	rec, out := do(t, h, http.MethodPut, "/v1/settings", `{"api_key":"AIza-secret-1234","model":"gemini-1.5-pro"}`, "9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "••••1234", out["api_key"])
	assert.Equal(t, true, out["has_api_key"])
	assert.Equal(t, "Saved", out["notice"])

	// echoing the mask keeps the stored key
	rec, _ = do(t, h, http.MethodPut, "/v1/settings", `{"api_key":"••••1234","model":"gemini-2.5-pro"}`, "9")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = do(t, h, http.MethodPost, "/v1/tab", `{"tab":"profile"}`, "9")
	require.Equal(t, http.StatusOK, rec.Code)
	s := out["settings"].(map[string]any)
	assert.Equal(t, "••••1234", s["api_key"])
	assert.Equal(t, "gemini-2.5-pro", s["model"])

	rec, out = do(t, h, http.MethodPost, "/v1/chat", `{"text":"hi"}`, "9")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "echo: hi", msgs[1].(map[string]any)["text"])
}

func TestChat_NoKeyIsABotMessage(t *testing.T) {
	h := newServer(t, "", stubClient{})
	rec, out := do(t, h, http.MethodPost, "/v1/chat", `{"text":"hi"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := out["messages"].([]any)
	assert.Equal(t, "Add your Gemini API key in Profile.", msgs[1].(map[string]any)["text"])
}

func TestUpload_BodyTooLarge(t *testing.T) {
	old := maxBody
	maxBody = 1 << 10
	t.Cleanup(func() { maxBody = old })

	h := newServer(t, "", stubClient{})
	body := `{"image_b64":"` + strings.Repeat("A", 4<<10) + `"}`
	rec, out := do(t, h, http.MethodPost, "/v1/crop", body, "1")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "request body too large", out["error"])

	// small bodies still pass
	rec, _ = do(t, h, http.MethodPost, "/v1/crop", `{"image_b64":"`+photoB64(t, 8, 8)+`"}`, "1")
	assert.Equal(t, http.StatusOK, rec.Code)
}
