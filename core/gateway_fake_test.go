package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sent is one recorded gateway call.
type sent struct {
	method    string
	chatID    int64
	text      string
	kind      MediaKind
	source    string
	messageID int64
	opts      SendOptions
}

// fakeGateway replays scripted batches and records every send. Once the
// script is exhausted FetchUpdates blocks until ctx is cancelled.
type fakeGateway struct {
	mu       sync.Mutex
	batches  [][]Update
	offsets  []int64
	sends    []sent
	meErr    error
	drained  chan struct{}
	drainOne sync.Once
}

func newFakeGateway(batches ...[]Update) *fakeGateway {
	return &fakeGateway{batches: batches, drained: make(chan struct{})}
}

func (f *fakeGateway) GetMe(context.Context) (BotIdentity, error) {
	if f.meErr != nil {
		return BotIdentity{}, f.meErr
	}
	return BotIdentity{ID: 1, IsBot: true, Username: "test_bot"}, nil
}

func (f *fakeGateway) FetchUpdates(ctx context.Context, offset int64) []Update {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b
	}
	f.mu.Unlock()

	f.drainOne.Do(func() { close(f.drained) })
	<-ctx.Done()
	return nil
}

func (f *fakeGateway) record(s sent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, s)
}

func (f *fakeGateway) SendText(_ context.Context, chatID int64, text string, opts SendOptions) (*Message, error) {
	f.record(sent{method: "sendMessage", chatID: chatID, text: text, opts: opts})
	return &Message{Chat: Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeGateway) SendMedia(_ context.Context, kind MediaKind, chatID int64, source, caption string, opts SendOptions) (*Message, error) {
	if ClassifySource(source) == SourceInvalid {
		return nil, ErrInvalidMediaSource
	}
	f.record(sent{method: "send" + kind.String(), chatID: chatID, kind: kind, source: source, text: caption, opts: opts})
	return &Message{Chat: Chat{ID: chatID}}, nil
}

func (f *fakeGateway) SendSticker(_ context.Context, chatID int64, fileID string, opts SendOptions) (*Message, error) {
	f.record(sent{method: "sendSticker", chatID: chatID, source: fileID, opts: opts})
	return &Message{Chat: Chat{ID: chatID}}, nil
}

func (f *fakeGateway) EditText(_ context.Context, chatID, messageID int64, text string, opts SendOptions) (*Message, error) {
	f.record(sent{method: "editMessageText", chatID: chatID, messageID: messageID, text: text, opts: opts})
	return &Message{MessageID: messageID, Chat: Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeGateway) calls() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sent, len(f.sends))
	copy(out, f.sends)
	return out
}

func (f *fakeGateway) texts() []string {
	var out []string
	for _, s := range f.calls() {
		out = append(out, s.text)
	}
	return out
}

var errBoom = errors.New("boom")

func textUpdate(id, chatID int64, text string) Update {
	return Update{
		UpdateID: id,
		Message: &Message{
			MessageID: id * 10,
			From:      &User{ID: chatID, FirstName: "Aziz"},
			Chat:      Chat{ID: chatID},
			Text:      text,
		},
	}
}

func photoUpdate(id, chatID int64) Update {
	return Update{
		UpdateID: id,
		Message: &Message{
			MessageID: id * 10,
			From:      &User{ID: chatID, FirstName: "Aziz"},
			Chat:      Chat{ID: chatID},
			Photo:     []PhotoSize{{FileID: "p1"}},
		},
	}
}

func callbackUpdate(id, chatID int64, data string) Update {
	return Update{
		UpdateID: id,
		CallbackQuery: &CallbackQuery{
			ID:      "cb",
			From:    User{ID: chatID, FirstName: "Aziz"},
			Data:    data,
			Message: &Message{MessageID: 500, Chat: Chat{ID: chatID}},
		},
	}
}
