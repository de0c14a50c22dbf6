// Package rules loads declarative trigger/response rules from a YAML file
// and registers them on a core.Registry.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jdelaire/osonbot/core"
)

// File is the top-level document of a rules file.
type File struct {
	Rules []Rule `yaml:"rules"`
}

// Rule binds one response to one or more triggers. Exactly one payload
// field must be set.
type Rule struct {
	When     []string `yaml:"when"`
	Media    string   `yaml:"media"`
	Callback []string `yaml:"callback"`

	Text     string     `yaml:"text"`
	Photo    *MediaRule `yaml:"photo"`
	Video    *MediaRule `yaml:"video"`
	Audio    *MediaRule `yaml:"audio"`
	Voice    *MediaRule `yaml:"voice"`
	Document *MediaRule `yaml:"document"`
	Sticker  string     `yaml:"sticker"`
	Edit     string     `yaml:"edit"`

	ParseMode string        `yaml:"parse_mode"`
	Keyboard  *KeyboardRule `yaml:"keyboard"`
	Once      bool          `yaml:"once"`
}

// MediaRule is a file path or URL with an optional caption template.
type MediaRule struct {
	Source  string `yaml:"source"`
	Caption string `yaml:"caption"`
}

// KeyboardRule describes reply markup. Only one of Reply, Inline or Remove
// may be set.
type KeyboardRule struct {
	Reply   [][]string     `yaml:"reply"`
	Resize  bool           `yaml:"resize"`
	OneTime bool           `yaml:"one_time"`
	Inline  [][]ButtonRule `yaml:"inline"`
	Remove  bool           `yaml:"remove"`
}

// ButtonRule is one inline button; it carries callback data or a URL.
type ButtonRule struct {
	Text string `yaml:"text"`
	Data string `yaml:"data"`
	URL  string `yaml:"url"`
}

// Bound lists what Apply registered, so it can be removed again.
type Bound struct {
	Triggers  []core.Trigger
	Callbacks []string
}

// Load reads and validates a rules file. A missing file yields no rules.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates rules from YAML. Unknown keys are rejected.
func Parse(data []byte) ([]Rule, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i := range f.Rules {
		if err := f.Rules[i].validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return f.Rules, nil
}

// Apply registers every rule on reg. Later rules override earlier ones for
// the same trigger. Nothing is registered if any rule is invalid.
func Apply(reg *core.Registry, rules []Rule) (Bound, error) {
	binds, b, err := compile(rules)
	if err != nil {
		return Bound{}, err
	}
	reg.Rebind(nil, nil, binds)
	return b, nil
}

// compile turns rules into registry bindings without touching a registry.
func compile(rules []Rule) ([]core.Binding, Bound, error) {
	var (
		binds []core.Binding
		b     Bound
	)
	for i, r := range rules {
		p, err := r.payload()
		if err != nil {
			return nil, Bound{}, fmt.Errorf("rule %d: %w", i, err)
		}
		opts, err := r.options()
		if err != nil {
			return nil, Bound{}, fmt.Errorf("rule %d: %w", i, err)
		}

		triggers := core.Triggers(r.When...)
		if r.Media != "" {
			kind, _ := core.ParseMediaKind(r.Media)
			triggers = append(triggers, core.OnMedia(kind))
		}
		binds = append(binds, core.Binding{
			Triggers:  triggers,
			Callbacks: r.Callback,
			Payload:   p,
			Options:   opts,
		})
		b.Triggers = append(b.Triggers, triggers...)
		b.Callbacks = append(b.Callbacks, r.Callback...)
	}
	return binds, b, nil
}

func (r Rule) validate() error {
	if len(r.When) == 0 && r.Media == "" && len(r.Callback) == 0 {
		return errors.New("no trigger: set when, media or callback")
	}
	for _, w := range r.When {
		if w == "" {
			return errors.New("empty trigger text")
		}
	}
	if r.Media != "" {
		if k, ok := core.ParseMediaKind(r.Media); !ok || k == core.MediaNone {
			return fmt.Errorf("unknown media kind %q", r.Media)
		}
	}
	if _, err := r.payload(); err != nil {
		return err
	}
	_, err := r.options()
	return err
}

func (r Rule) payload() (core.Payload, error) {
	var found []core.Payload
	if r.Text != "" {
		found = append(found, core.Text(r.Text))
	}
	for _, m := range []struct {
		kind core.MediaKind
		rule *MediaRule
	}{
		{core.MediaPhoto, r.Photo},
		{core.MediaVideo, r.Video},
		{core.MediaAudio, r.Audio},
		{core.MediaVoice, r.Voice},
		{core.MediaDocument, r.Document},
	} {
		if m.rule == nil {
			continue
		}
		if m.rule.Source == "" {
			return nil, fmt.Errorf("%s without source", m.kind)
		}
		found = append(found, core.Media{Kind: m.kind, Source: m.rule.Source, Caption: m.rule.Caption})
	}
	if r.Sticker != "" {
		found = append(found, core.Sticker{FileID: r.Sticker})
	}
	if r.Edit != "" {
		found = append(found, core.Edit{Text: r.Edit})
	}

	switch len(found) {
	case 0:
		return nil, errors.New("no response: set text, a media kind, sticker or edit")
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%d responses set, want exactly one", len(found))
}

func (r Rule) options() ([]core.HandlerOption, error) {
	var opts []core.HandlerOption
	if r.ParseMode != "" {
		opts = append(opts, core.WithParseMode(r.ParseMode))
	}
	if r.Once {
		opts = append(opts, core.Once())
	}
	if r.Keyboard != nil {
		m, err := r.Keyboard.markup()
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithMarkup(m))
	}
	return opts, nil
}

func (k KeyboardRule) markup() (core.Markup, error) {
	set := 0
	for _, b := range []bool{len(k.Reply) > 0, len(k.Inline) > 0, k.Remove} {
		if b {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("keyboard needs exactly one of reply, inline or remove")
	}

	switch {
	case k.Remove:
		return core.HideKeyboard(), nil
	case len(k.Reply) > 0:
		return core.ReplyKeyboard{Keyboard: k.Reply, ResizeKeyboard: k.Resize, OneTimeKeyboard: k.OneTime}, nil
	}

	rows := make([][]core.InlineButton, 0, len(k.Inline))
	for _, row := range k.Inline {
		buttons := make([]core.InlineButton, 0, len(row))
		for _, b := range row {
			if b.Text == "" || (b.Data == "") == (b.URL == "") {
				return nil, fmt.Errorf("inline button %q needs text and exactly one of data or url", b.Text)
			}
			buttons = append(buttons, core.InlineButton{Text: b.Text, CallbackData: b.Data, URL: b.URL})
		}
		rows = append(rows, buttons)
	}
	return core.InlineKeyboard{InlineKeyboard: rows}, nil
}
