package telegram_gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jdelaire/osonbot/core"
)

var mediaMethods = map[core.MediaKind]struct{ method, field string }{
	core.MediaPhoto:    {"sendPhoto", "photo"},
	core.MediaVideo:    {"sendVideo", "video"},
	core.MediaAudio:    {"sendAudio", "audio"},
	core.MediaVoice:    {"sendVoice", "voice"},
	core.MediaDocument: {"sendDocument", "document"},
	core.MediaSticker:  {"sendSticker", "sticker"},
}

// upload is a local file sent as a multipart form field.
type upload struct {
	field string
	path  string
}

// SendText calls sendMessage.
func (g *Gateway) SendText(ctx context.Context, chatID int64, text string, opts core.SendOptions) (*core.Message, error) {
	params := baseParams(chatID, opts)
	params.Set("text", text)
	return g.send(ctx, "sendMessage", chatID, params, nil)
}

// SendMedia calls the send method for kind. A local file is streamed as a
// multipart upload; an http(s) URL is passed by reference. Any other source
// returns core.ErrInvalidMediaSource without touching the network.
func (g *Gateway) SendMedia(ctx context.Context, kind core.MediaKind, chatID int64, source, caption string, opts core.SendOptions) (*core.Message, error) {
	m, ok := mediaMethods[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported media kind %s", kind)
	}

	params := baseParams(chatID, opts)
	if caption != "" && kind != core.MediaSticker {
		params.Set("caption", caption)
	}

	var file *upload
	switch core.ClassifySource(source) {
	case core.SourceLocalFile:
		file = &upload{field: m.field, path: source}
	case core.SourceRemoteURL:
		params.Set(m.field, source)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidMediaSource, source)
	}

	return g.send(ctx, m.method, chatID, params, file)
}

// SendSticker calls sendSticker with a file id.
func (g *Gateway) SendSticker(ctx context.Context, chatID int64, fileID string, opts core.SendOptions) (*core.Message, error) {
	params := baseParams(chatID, opts)
	params.Set("sticker", fileID)
	return g.send(ctx, "sendSticker", chatID, params, nil)
}

// EditText calls editMessageText.
func (g *Gateway) EditText(ctx context.Context, chatID, messageID int64, text string, opts core.SendOptions) (*core.Message, error) {
	params := baseParams(chatID, opts)
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("text", text)
	return g.send(ctx, "editMessageText", chatID, params, nil)
}

func baseParams(chatID int64, opts core.SendOptions) url.Values {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	if opts.ParseMode != "" {
		params.Set("parse_mode", opts.ParseMode)
	}
	if opts.ReplyMarkup != nil {
		if data, err := json.Marshal(opts.ReplyMarkup); err == nil {
			params.Set("reply_markup", string(data))
		}
	}
	return params
}

// send delivers one message. Delivery failures are logged and reported as a
// nil message; chats that keep rejecting deliveries are muted for a while.
func (g *Gateway) send(ctx context.Context, method string, chatID int64, params url.Values, file *upload) (*core.Message, error) {
	logger := g.logger.With("method", method, "chat_id", chatID)

	if err := g.chats.Check(chatID); err != nil {
		logger.Debug("send skipped", "error", err)
		return nil, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		logger.Warn("send throttled past deadline", "error", err)
		return nil, nil
	}

	body := formBody(params)
	if file != nil {
		body = multipartBody(params, file)
	}

	raw, err := g.call(ctx, http.MethodPost, method, body)
	if err != nil {
		logger.Error("send failed", "error", err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
			g.chats.RecordFailure(chatID)
		}
		return nil, nil
	}
	g.chats.Reset(chatID)

	var msg core.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		// editMessageText on inline messages returns true instead of a message.
		logger.Debug("send result is not a message", "error", err)
		return nil, nil
	}
	return &msg, nil
}

func formBody(params url.Values) requestBody {
	return func() (io.Reader, string, error) {
		return strings.NewReader(params.Encode()), "application/x-www-form-urlencoded", nil
	}
}

// multipartBody streams the file through a pipe so large media is never
// buffered in memory.
func multipartBody(params url.Values, file *upload) requestBody {
	return func() (io.Reader, string, error) {
		f, err := os.Open(file.path)
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", file.path, err)
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			defer f.Close()
			for key, values := range params {
				for _, v := range values {
					if err := mw.WriteField(key, v); err != nil {
						pw.CloseWithError(err)
						return
					}
				}
			}
			part, err := mw.CreateFormFile(file.field, filepath.Base(file.path))
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, f); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.CloseWithError(mw.Close())
		}()
		return pr, mw.FormDataContentType(), nil
	}
}
