package core

// Markup is a reply_markup value attached to an outgoing message.
type Markup interface {
	isMarkup()
}

// ReplyKeyboard replaces the user's keyboard with fixed buttons.
type ReplyKeyboard struct {
	Keyboard        [][]string `json:"keyboard"`
	ResizeKeyboard  bool       `json:"resize_keyboard"`
	OneTimeKeyboard bool       `json:"one_time_keyboard"`
}

// InlineButton is a button under a message. Exactly one of CallbackData and
// URL is set.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard attaches buttons to the sent message.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// RemoveKeyboard hides a previously sent reply keyboard.
type RemoveKeyboard struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

func (ReplyKeyboard) isMarkup()  {}
func (InlineKeyboard) isMarkup() {}
func (RemoveKeyboard) isMarkup() {}

// Keyboard builds a resizable reply keyboard from rows of labels.
func Keyboard(rows ...[]string) ReplyKeyboard {
	return ReplyKeyboard{Keyboard: rows, ResizeKeyboard: true}
}

// Button pairs a label with callback data or a URL.
type Button [2]string

// CallbackKeyboard builds an inline keyboard whose buttons send callback data.
func CallbackKeyboard(rows ...[]Button) InlineKeyboard {
	return inlineKeyboard(rows, func(b Button) InlineButton {
		return InlineButton{Text: b[0], CallbackData: b[1]}
	})
}

// URLKeyboard builds an inline keyboard whose buttons open links.
func URLKeyboard(rows ...[]Button) InlineKeyboard {
	return inlineKeyboard(rows, func(b Button) InlineButton {
		return InlineButton{Text: b[0], URL: b[1]}
	})
}

// HideKeyboard removes the reply keyboard.
func HideKeyboard() RemoveKeyboard {
	return RemoveKeyboard{RemoveKeyboard: true}
}

func inlineKeyboard(rows [][]Button, build func(Button) InlineButton) InlineKeyboard {
	kb := InlineKeyboard{InlineKeyboard: make([][]InlineButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]InlineButton, 0, len(row))
		for _, b := range row {
			out = append(out, build(b))
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}
