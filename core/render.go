package core

import (
	"regexp"
	"strconv"
)

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

var placeholders = map[string]bool{
	"first_name": true,
	"last_name":  true,
	"full_name":  true,
	"username":   true,
	"user_id":    true,
	"message_id": true,
	"text":       true,
}

// Render substitutes {first_name}, {last_name}, {full_name}, {username},
// {user_id}, {message_id} and {text} in tmpl with values from u.
//
// Sender fields come from the message's from object, falling back to the
// chat object when from is absent or lacks a field the template uses. If
// neither source can fill every placeholder, tmpl is returned unchanged.
// Braced words outside that set are literal text.
func Render(tmpl string, u Update) string {
	if !placeholderRe.MatchString(tmpl) {
		return tmpl
	}
	for _, fields := range renderSources(u) {
		if out, ok := substitute(tmpl, fields); ok {
			return out
		}
	}
	return tmpl
}

func substitute(tmpl string, fields map[string]string) (string, bool) {
	complete := true
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if !placeholders[name] {
			return m
		}
		v := fields[name]
		if v == "" {
			complete = false
		}
		return v
	})
	return out, complete
}

func renderSources(u Update) []map[string]string {
	var msg *Message
	var text string
	switch {
	case u.CallbackQuery != nil:
		msg = u.CallbackQuery.Message
		text = u.CallbackQuery.Data
	case u.Message != nil:
		msg = u.Message
		text = u.Message.Text
		if text == "" {
			text = u.Message.Caption
		}
	}

	common := func() map[string]string {
		f := map[string]string{"text": text}
		if msg != nil && msg.MessageID != 0 {
			f["message_id"] = strconv.FormatInt(msg.MessageID, 10)
		}
		return f
	}

	var sources []map[string]string
	if from := u.Sender(); from != nil {
		f := common()
		f["first_name"] = from.FirstName
		f["last_name"] = from.LastName
		f["full_name"] = from.FullName()
		f["username"] = from.Username
		if from.ID != 0 {
			f["user_id"] = strconv.FormatInt(from.ID, 10)
		}
		sources = append(sources, f)
	}
	if msg != nil {
		c := msg.Chat
		f := common()
		f["first_name"] = c.FirstName
		f["last_name"] = c.LastName
		f["full_name"] = User{FirstName: c.FirstName, LastName: c.LastName}.FullName()
		f["username"] = c.Username
		if c.ID != 0 {
			f["user_id"] = strconv.FormatInt(c.ID, 10)
		}
		sources = append(sources, f)
	}
	return sources
}
