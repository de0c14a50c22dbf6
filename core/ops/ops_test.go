package ops_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/ops"
	"github.com/jdelaire/osonbot/core/supervisor"
)

const (
	tokenA = "111:AAAAAAAAAAAAAAAAAAAAAAAA"
	tokenB = "222:BBBBBBBBBBBBBBBBBBBBBBBB"
)

// fakeBots is an in-memory stand-in for the supervisor.
type fakeBots struct {
	mu       sync.Mutex
	bots     []supervisor.Info
	commands map[string]map[string]string
	addErr   error
}

func (f *fakeBots) AddInstance(token string, owner int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return false, f.addErr
	}
	for _, b := range f.bots {
		if b.Token == token {
			return false, nil
		}
	}
	f.bots = append(f.bots, supervisor.Info{
		Token:     token,
		TokenHint: supervisor.MaskToken(token),
		OwnerID:   owner,
		Username:  "bot" + strings.Split(token, ":")[0],
		Status:    supervisor.StatusRunning,
	})
	return true, nil
}

func (f *fakeBots) RegisterCommand(token, trigger, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commands == nil {
		f.commands = make(map[string]map[string]string)
	}
	if f.commands[token] == nil {
		f.commands[token] = make(map[string]string)
	}
	f.commands[token][trigger] = response
	for i := range f.bots {
		if f.bots[i].Token == token {
			f.bots[i].Commands = len(f.commands[token])
			return nil
		}
	}
	return supervisor.ErrUnknownBot
}

func (f *fakeBots) RemoveInstance(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.bots {
		if b.Token == token {
			f.bots = append(f.bots[:i], f.bots[i+1:]...)
			return nil
		}
	}
	return supervisor.ErrUnknownBot
}

func (f *fakeBots) InstanceForOwner(owner int64) (supervisor.Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bots {
		if b.OwnerID == owner {
			return b, true
		}
	}
	return supervisor.Info{}, false
}

func (f *fakeBots) Instances() []supervisor.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]supervisor.Info(nil), f.bots...)
}

type codeVerifier string

func (c codeVerifier) Verify(code string) bool { return code == string(c) }

func builder(bots *fakeBots) core.Computed {
	reg := ops.Builder{Bots: bots, Admin: codeVerifier("424242")}.Registry()
	return ops.Handler(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func say(t *testing.T, h core.Computed, userID int64, text string) string {
	t.Helper()
	u := core.Update{Message: &core.Message{
		From: &core.User{ID: userID, FirstName: "Aziz"},
		Chat: core.Chat{ID: userID},
		Text: text,
	}}
	p, err := h(context.Background(), u)
	if err != nil {
		t.Fatalf("%q: %v", text, err)
	}
	reply, ok := p.(core.Text)
	if !ok {
		t.Fatalf("%q: payload %T, want core.Text", text, p)
	}
	return string(reply)
}

func TestBuilderFlow(t *testing.T) {
	bots := &fakeBots{}
	h := builder(bots)

	if got := say(t, h, 7, "/mybot"); !strings.Contains(got, "/newbot") {
		t.Errorf("mybot without a bot = %q", got)
	}
	if got := say(t, h, 7, "/newbot "+tokenA); !strings.Contains(got, "Bot added") {
		t.Fatalf("newbot = %q", got)
	}
	if got := say(t, h, 7, "/newbot "+tokenB); !strings.Contains(got, "already have a bot") {
		t.Errorf("second newbot = %q", got)
	}
	if got := say(t, h, 8, "/newbot "+tokenA); !strings.Contains(got, "already registered") {
		t.Errorf("duplicate token = %q", got)
	}

	if got := say(t, h, 7, "/when hi = Hello {first_name}!"); !strings.Contains(got, `"hi"`) {
		t.Errorf("when = %q", got)
	}
	if r := bots.commands[tokenA]["hi"]; r != "Hello {first_name}!" {
		t.Errorf("registered response = %q", r)
	}

	got := say(t, h, 7, "/mybot")
	for _, want := range []string{"@bot111", "111:****", "running", "Commands: 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("mybot = %q, missing %q", got, want)
		}
	}
}

func TestBuilderUsageMessages(t *testing.T) {
	h := builder(&fakeBots{})
	tests := map[string]string{
		"/newbot":           "Usage: /newbot",
		"/newbot not-token": "does not look like a bot token",
		"/when":             "Usage: /when",
		"/when hi =":        "Usage: /when",
		"/when hi = there":  "don't have a bot",
		"/frobnicate":       "Unknown command: /frobnicate",
		"hello":             "Send /help",
		"/start":            "Available commands:",
		"/help@builder_bot": "/newbot",
	}
	for text, want := range tests {
		if got := say(t, h, 1, text); !strings.Contains(got, want) {
			t.Errorf("%q -> %q, want containing %q", text, got, want)
		}
	}
}

func TestBuilderDeleteNeedsConfirmation(t *testing.T) {
	bots := &fakeBots{}
	h := builder(bots)
	say(t, h, 7, "/newbot "+tokenA)

	prompt := say(t, h, 7, "/delbot")
	code := regexp.MustCompile(`/delbot ([0-9a-f]+)`).FindStringSubmatch(prompt)
	if code == nil {
		t.Fatalf("delbot prompt = %q", prompt)
	}
	if len(bots.Instances()) != 1 {
		t.Fatal("bot deleted before confirmation")
	}

	if got := say(t, h, 9, "/delbot "+code[1]); !strings.Contains(got, "invalid or expired") {
		t.Errorf("foreign confirmation = %q", got)
	}
	if got := say(t, h, 7, "/delbot "+code[1]); !strings.Contains(got, "deleted") {
		t.Fatalf("confirmation = %q", got)
	}
	if len(bots.Instances()) != 0 {
		t.Error("bot still registered after confirmation")
	}
	if got := say(t, h, 7, "/delbot "+code[1]); !strings.Contains(got, "invalid or expired") {
		t.Errorf("reused code = %q", got)
	}
}

func TestBuilderAdminListing(t *testing.T) {
	bots := &fakeBots{}
	h := builder(bots)
	say(t, h, 7, "/newbot "+tokenA)
	say(t, h, 8, "/newbot "+tokenB)

	if got := say(t, h, 1, "/bots 000000"); got != "Invalid admin code." {
		t.Errorf("bad code = %q", got)
	}
	got := say(t, h, 1, "/bots 424242")
	if !strings.HasPrefix(got, "2 bots:") || !strings.Contains(got, "owner=8") {
		t.Errorf("listing = %q", got)
	}
}

func TestBuilderWithoutAdminHasNoListing(t *testing.T) {
	reg := ops.Builder{Bots: &fakeBots{}}.Registry()
	if reg.Get("bots") != nil {
		t.Error("admin listing registered without a verifier")
	}
}

func TestBuilderReportsOpErrors(t *testing.T) {
	h := builder(&fakeBots{addErr: errors.New("disk full")})
	got := say(t, h, 7, "/newbot "+tokenA)
	if !strings.Contains(got, "Error running /newbot") || !strings.Contains(got, "disk full") {
		t.Errorf("reply = %q", got)
	}
}

func TestBuilderIgnoresCallbacks(t *testing.T) {
	h := builder(&fakeBots{})
	p, err := h(context.Background(), core.Update{CallbackQuery: &core.CallbackQuery{Data: "x"}})
	if p != nil || err != nil {
		t.Errorf("callback = (%v, %v), want (nil, nil)", p, err)
	}
}

func TestStatusOutput(t *testing.T) {
	bots := &fakeBots{}
	bots.AddInstance(tokenA, 1)
	op := &ops.StatusOp{Bots: bots}

	result, err := op.Execute(context.Background(), ops.Request{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"Status: OK", "Uptime:", "Bots: 1 (1 running, 0 failed)", "Go:", "Goroutines:"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q in %q", want, result)
		}
	}
}

func TestHelpSortOrder(t *testing.T) {
	reg := ops.NewRegistry()
	reg.Register(&mockOp{name: "zebra", desc: "z"})
	reg.Register(&mockOp{name: "alpha", desc: "a"})

	result, err := (&ops.HelpOp{Registry: reg}).Execute(context.Background(), ops.Request{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	alphaIdx := strings.Index(result, "/alpha")
	zebraIdx := strings.Index(result, "/zebra")
	if alphaIdx == -1 || zebraIdx == -1 || alphaIdx > zebraIdx {
		t.Errorf("unexpected help output: %q", result)
	}
}

func TestHelpEmpty(t *testing.T) {
	result, _ := (&ops.HelpOp{Registry: ops.NewRegistry()}).Execute(context.Background(), ops.Request{})
	if !strings.Contains(result, "No commands available") {
		t.Errorf("expected empty message, got: %q", result)
	}
}
