package core

import (
	"strings"
	"time"
)

// Update is a single event returned by getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Video     *File       `json:"video,omitempty"`
	Audio     *File       `json:"audio,omitempty"`
	Voice     *File       `json:"voice,omitempty"`
	Document  *File       `json:"document,omitempty"`
	Sticker   *File       `json:"sticker,omitempty"`
}

// User is the sender of a message or callback.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Chat is the conversation a message belongs to. Private chats carry the
// peer's name, which is used when the sender is absent.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CallbackQuery is a press on an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// PhotoSize is one resolution of a sent photo.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// File references any other uploaded media.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
}

// BotIdentity is the result of getMe.
type BotIdentity struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// MediaKind tags the media carried by a message or sent by a payload.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaVideo
	MediaAudio
	MediaVoice
	MediaDocument
	MediaSticker
)

var mediaNames = map[MediaKind]string{
	MediaPhoto:    "photo",
	MediaVideo:    "video",
	MediaAudio:    "audio",
	MediaVoice:    "voice",
	MediaDocument: "document",
	MediaSticker:  "sticker",
}

func (k MediaKind) String() string {
	if name, ok := mediaNames[k]; ok {
		return name
	}
	return "none"
}

// ParseMediaKind maps a name such as "photo" to its MediaKind.
func ParseMediaKind(name string) (MediaKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range mediaNames {
		if n == name {
			return k, true
		}
	}
	return MediaNone, false
}

// MediaKind reports which media the message carries, if any.
func (m *Message) MediaKind() MediaKind {
	switch {
	case len(m.Photo) > 0:
		return MediaPhoto
	case m.Video != nil:
		return MediaVideo
	case m.Audio != nil:
		return MediaAudio
	case m.Voice != nil:
		return MediaVoice
	case m.Document != nil:
		return MediaDocument
	case m.Sticker != nil:
		return MediaSticker
	}
	return MediaNone
}

// Time returns the message send time, or the zero time if unknown.
func (m *Message) Time() time.Time {
	if m.Date == 0 {
		return time.Time{}
	}
	return time.Unix(m.Date, 0)
}

// ChatID returns the chat a reply to this update should go to, or 0.
func (u Update) ChatID() int64 {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID
	case u.Message != nil:
		return u.Message.Chat.ID
	}
	return 0
}

// Sender returns the user behind the update, or nil.
func (u Update) Sender() *User {
	switch {
	case u.CallbackQuery != nil:
		return &u.CallbackQuery.From
	case u.Message != nil:
		return u.Message.From
	}
	return nil
}
