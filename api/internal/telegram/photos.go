package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snap-solver/api/internal/app"
)

// maxDownload bounds photo downloads; Telegram bots can fetch at most 20MB.
const maxDownload = 20 << 20

// nudgeStep is one arrow press as a fraction of the crop canvas.
const nudgeStep = 0.1

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	var fileID string
	if len(msg.Photo) > 0 {
		fileID = msg.Photo[len(msg.Photo)-1].FileID // largest size
	} else {
		fileID = msg.Document.FileID
	}
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.Log.Errorf("get file chat=%d: %v", cid, err)
		r.send(cid, "Could not fetch that photo.")
		return
	}
	data, err := r.download(ctx, url)
	if err != nil {
		r.Log.Errorf("download chat=%d: %v", cid, err)
		r.send(cid, "Could not fetch that photo.")
		return
	}
	v, err := r.App.Upload(cid, data)
	if err != nil {
		r.notify(cid, err)
		return
	}
	r.showCrop(cid, v, true)
}

func (r *Router) snap(ctx context.Context, chatID int64) {
	v, err := r.App.Capture(ctx, chatID)
	if err != nil {
		r.notify(chatID, err)
		return
	}
	r.showCrop(chatID, v, true)
}

// showCrop renders the crop preview. A fresh session gets a new photo
// message; moves edit the existing one.
func (r *Router) showCrop(chatID int64, v app.View, fresh bool) {
	png, err := r.App.Preview(chatID)
	if err != nil {
		r.notify(chatID, err)
		return
	}
	file := tgbotapi.FileBytes{Name: "crop.png", Bytes: png}
	kb := cropKeyboard()

	r.mu.Lock()
	msgID, ok := r.previews[chatID]
	r.mu.Unlock()

	if ok && !fresh {
		edit := tgbotapi.EditMessageMediaConfig{
			BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: msgID, ReplyMarkup: &kb},
			Media:    tgbotapi.NewInputMediaPhoto(file),
		}
		_, err := r.Bot.Send(edit)
		if err == nil {
			return
		}
		r.Log.Debugf("edit crop preview chat=%d: %v", chatID, err)
	}
	if ok && fresh {
		r.dropPreview(chatID)
	}

	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = fmt.Sprintf("Move the frame over the problem, then Solve. Subject: %s", v.Subject)
	photo.ReplyMarkup = kb
	m, err := r.Bot.Send(photo)
	if err != nil {
		r.Log.Errorf("send crop preview chat=%d: %v", chatID, err)
		return
	}
	r.mu.Lock()
	r.previews[chatID] = m.MessageID
	r.mu.Unlock()
}

// dropPreview deletes the preview message, if any.
func (r *Router) dropPreview(chatID int64) {
	r.mu.Lock()
	msgID, ok := r.previews[chatID]
	delete(r.previews, chatID)
	r.mu.Unlock()
	if !ok {
		return
	}
	if _, err := r.Bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
		r.Log.Debugf("delete crop preview chat=%d: %v", chatID, err)
	}
}

func (r *Router) nudge(chatID int64, dir string) {
	v := r.App.View(chatID)
	if !v.Cropping {
		r.notify(chatID, app.ErrNoCropper)
		return
	}
	dx := float64(v.Fit.Width) * nudgeStep
	dy := float64(v.Fit.Height) * nudgeStep
	switch dir {
	case "up":
		dx, dy = 0, -dy
	case "down":
		dx = 0
	case "left":
		dx, dy = -dx, 0
	case "right":
		dy = 0
	}
	v, err := r.App.Nudge(chatID, dx, dy)
	if err != nil {
		r.notify(chatID, err)
		return
	}
	r.showCrop(chatID, v, false)
}

func (r *Router) cancel(chatID int64) {
	r.App.CancelCrop(chatID)
	r.dropPreview(chatID)
}

// confirm solves the crop in the background; the thinking message is shown
// and removed by the controller through the indicator.
func (r *Router) confirm(ctx context.Context, chatID int64) {
	v := r.App.View(chatID)
	if !v.Cropping {
		r.notify(chatID, app.ErrNoCropper)
		return
	}
	if v.Busy {
		r.notify(chatID, app.ErrBusy)
		return
	}
	r.dropPreview(chatID)
	r.background(func() {
		msg, err := r.App.ConfirmCrop(app.WithIndicator(ctx, thinking{r: r}), chatID)
		if err != nil {
			r.notify(chatID, err)
			// a busy owner keeps the crop; bring its preview back
			if v := r.App.View(chatID); errors.Is(err, app.ErrBusy) && v.Cropping {
				r.showCrop(chatID, v, true)
			}
			return
		}
		v := r.App.View(chatID)
		r.sendWithKeyboard(chatID, msg.Text, homeKeyboard(v))
	})
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	if r.Download != nil {
		return r.Download(ctx, url)
	}
	return download(ctx, url)
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
