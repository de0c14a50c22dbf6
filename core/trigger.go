package core

import "fmt"

// WildcardKey is the textual form of the Wildcard trigger in rule files and
// the roster.
const WildcardKey = "*"

type triggerKind uint8

const (
	triggerText triggerKind = iota
	triggerWildcard
	triggerMedia
)

// Trigger is a registry key: exact message text, the wildcard, or a media kind.
// Text triggers are case-sensitive.
type Trigger struct {
	kind  triggerKind
	text  string
	media MediaKind
}

// Wildcard matches any text message that has no exact trigger.
var Wildcard = Trigger{kind: triggerWildcard}

// Exact matches messages whose text equals text.
func Exact(text string) Trigger {
	return Trigger{kind: triggerText, text: text}
}

// OnMedia matches messages without text that carry media of kind k.
func OnMedia(k MediaKind) Trigger {
	return Trigger{kind: triggerMedia, media: k}
}

// ParseTrigger maps "*" to Wildcard and anything else to an exact trigger.
func ParseTrigger(s string) Trigger {
	if s == WildcardKey {
		return Wildcard
	}
	return Exact(s)
}

// Triggers converts texts with ParseTrigger.
func Triggers(texts ...string) []Trigger {
	out := make([]Trigger, 0, len(texts))
	for _, t := range texts {
		out = append(out, ParseTrigger(t))
	}
	return out
}

func (t Trigger) String() string {
	switch t.kind {
	case triggerWildcard:
		return WildcardKey
	case triggerMedia:
		return fmt.Sprintf("<%s>", t.media)
	}
	return t.text
}
