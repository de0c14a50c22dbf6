package supervisor_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/supervisor"
	"github.com/jdelaire/osonbot/internal/roster"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	token   string
	updates chan []core.Update
	replies chan string
}

func (f *fakeGateway) GetMe(context.Context) (core.BotIdentity, error) {
	if strings.HasPrefix(f.token, "bad") {
		return core.BotIdentity{}, core.ErrUnauthorized
	}
	id, _, _ := strings.Cut(f.token, ":")
	return core.BotIdentity{IsBot: true, Username: "bot_" + id}, nil
}

func (f *fakeGateway) FetchUpdates(ctx context.Context, _ int64) []core.Update {
	select {
	case <-ctx.Done():
		return nil
	case b := <-f.updates:
		return b
	}
}

func (f *fakeGateway) SendText(_ context.Context, chatID int64, text string, _ core.SendOptions) (*core.Message, error) {
	f.replies <- text
	return &core.Message{Chat: core.Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeGateway) SendMedia(context.Context, core.MediaKind, int64, string, string, core.SendOptions) (*core.Message, error) {
	return nil, nil
}

func (f *fakeGateway) SendSticker(context.Context, int64, string, core.SendOptions) (*core.Message, error) {
	return nil, nil
}

func (f *fakeGateway) EditText(context.Context, int64, int64, string, core.SendOptions) (*core.Message, error) {
	return nil, nil
}

func (f *fakeGateway) say(text string) {
	f.updates <- []core.Update{{
		UpdateID: 1,
		Message:  &core.Message{MessageID: 1, Chat: core.Chat{ID: 99}, Text: text},
	}}
}

func (f *fakeGateway) reply(t *testing.T) string {
	t.Helper()
	select {
	case r := <-f.replies:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
	return ""
}

type fakes struct {
	mu  sync.Mutex
	gws map[string]*fakeGateway
}

func (f *fakes) factory(token string) core.Gateway {
	return f.get(token)
}

func (f *fakes) get(token string) *fakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gws == nil {
		f.gws = make(map[string]*fakeGateway)
	}
	gw, ok := f.gws[token]
	if !ok {
		gw = &fakeGateway{token: token, updates: make(chan []core.Update), replies: make(chan string, 16)}
		f.gws[token] = gw
	}
	return gw
}

func newSupervisor(t *testing.T, store *roster.Store, opts ...supervisor.Option) (*supervisor.Supervisor, *fakes) {
	t.Helper()
	f := &fakes{}
	s := supervisor.New(context.Background(), store, f.factory, testLogger(), opts...)
	t.Cleanup(s.Shutdown)
	return s, f
}

func newStore(t *testing.T) *roster.Store {
	return roster.NewStore(filepath.Join(t.TempDir(), "bots.json"))
}

func waitStatus(t *testing.T, s *supervisor.Supervisor, token string, want supervisor.Status) supervisor.Info {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if info, ok := s.Instance(token); ok && info.Status == want {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	info, _ := s.Instance(token)
	t.Fatalf("instance status = %q, want %q", info.Status, want)
	return info
}

func TestAddInstanceRejectsDuplicate(t *testing.T) {
	store := newStore(t)
	s, _ := newSupervisor(t, store)

	added, err := s.AddInstance("111:aaa", 7)
	if err != nil || !added {
		t.Fatalf("first add = (%v, %v), want (true, nil)", added, err)
	}
	added, err = s.AddInstance("111:aaa", 8)
	if err != nil || added {
		t.Fatalf("second add = (%v, %v), want (false, nil)", added, err)
	}

	recs, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].OwnerID != 7 {
		t.Fatalf("roster = %+v, want one record owned by 7", recs)
	}
	if n := len(s.Instances()); n != 1 {
		t.Fatalf("instances = %d, want 1", n)
	}
}

func TestFailedInstanceDoesNotAffectSiblings(t *testing.T) {
	s, f := newSupervisor(t, newStore(t), supervisor.WithUnknownReply("?"))

	if _, err := s.AddInstance("bad:token", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddInstance("222:good", 2); err != nil {
		t.Fatal(err)
	}

	failed := waitStatus(t, s, "bad:token", supervisor.StatusFailed)
	if !strings.Contains(failed.Error, "rejected") {
		t.Errorf("failure = %q, want a rejected token", failed.Error)
	}

	good := f.get("222:good")
	good.say("hello")
	if got := good.reply(t); got != "?" {
		t.Errorf("sibling reply = %q, want ?", got)
	}
	info := waitStatus(t, s, "222:good", supervisor.StatusRunning)
	if info.Username != "bot_222" {
		t.Errorf("username = %q, want bot_222", info.Username)
	}
}

func TestRestartAllFromPersistedRoster(t *testing.T) {
	store := newStore(t)
	rec := roster.NewRecord("333:ccc", 5, time.Now())
	rec.Commands = []roster.Command{{Trigger: "/hello", Response: "Hello!"}}
	if err := store.Save([]roster.Record{rec}); err != nil {
		t.Fatal(err)
	}

	s, f := newSupervisor(t, store)
	n, err := s.RestartAll()
	if err != nil || n != 1 {
		t.Fatalf("RestartAll = (%d, %v), want (1, nil)", n, err)
	}
	if n, _ := s.RestartAll(); n != 0 {
		t.Fatalf("second RestartAll started %d, want 0", n)
	}

	gw := f.get("333:ccc")
	gw.say("/hello")
	if got := gw.reply(t); got != "Hello!" {
		t.Errorf("reply = %q, want Hello!", got)
	}
	gw.say("/nope")
	if got := gw.reply(t); got != supervisor.DefaultUnknownReply {
		t.Errorf("reply = %q, want the unknown-command reply", got)
	}
}

func TestRegisterCommandReachesRunningInstance(t *testing.T) {
	store := newStore(t)
	s, f := newSupervisor(t, store)
	if _, err := s.AddInstance("444:ddd", 9); err != nil {
		t.Fatal(err)
	}

	if err := s.RegisterCommand("444:ddd", "/ping", "pong"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterCommand("444:ddd", "/ping", "PONG"); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	gw := f.get("444:ddd")
	gw.say("/ping")
	if got := gw.reply(t); got != "PONG" {
		t.Errorf("reply = %q, want PONG", got)
	}

	recs, _ := store.Load()
	if len(recs[0].Commands) != 1 || recs[0].Commands[0].Response != "PONG" {
		t.Errorf("persisted commands = %+v", recs[0].Commands)
	}
	if info, _ := s.Instance("444:ddd"); info.Commands != 1 {
		t.Errorf("info.Commands = %d, want 1", info.Commands)
	}

	if err := s.RegisterCommand("missing", "/x", "y"); !errors.Is(err, supervisor.ErrUnknownBot) {
		t.Errorf("err = %v, want ErrUnknownBot", err)
	}
}

func TestRemoveInstance(t *testing.T) {
	store := newStore(t)
	s, _ := newSupervisor(t, store)
	s.AddInstance("555:eee", 1)
	s.AddInstance("666:fff", 2)

	if err := s.RemoveInstance("555:eee"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveInstance("555:eee"); !errors.Is(err, supervisor.ErrUnknownBot) {
		t.Fatalf("second remove err = %v, want ErrUnknownBot", err)
	}
	if _, ok := s.Instance("555:eee"); ok {
		t.Error("removed instance still listed")
	}
	recs, _ := store.Load()
	if len(recs) != 1 || recs[0].Token != "666:fff" {
		t.Errorf("roster = %+v", recs)
	}
}

func TestInstanceForOwner(t *testing.T) {
	s, _ := newSupervisor(t, newStore(t))
	s.AddInstance("777:ggg", 70)

	info, ok := s.InstanceForOwner(70)
	if !ok || info.TokenHint != "777:****" || info.Token != "777:ggg" {
		t.Fatalf("InstanceForOwner = (%+v, %v)", info, ok)
	}
	if _, ok := s.InstanceForOwner(71); ok {
		t.Error("found an instance for an owner without one")
	}
}

func TestConcurrentAddsKeepEveryRecord(t *testing.T) {
	store := newStore(t)
	s, _ := newSupervisor(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddInstance(fmt.Sprintf("%d:tok", i), int64(i)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	recs, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 20 {
		t.Fatalf("roster has %d records, want 20", len(recs))
	}
}

func TestShutdownStopsInstances(t *testing.T) {
	f := &fakes{}
	s := supervisor.New(context.Background(), newStore(t), f.factory, testLogger())
	s.AddInstance("888:hhh", 1)
	s.Shutdown()

	info, ok := s.Instance("888:hhh")
	if !ok || info.Status != supervisor.StatusStopped {
		t.Fatalf("after shutdown = (%+v, %v), want stopped", info, ok)
	}
}

func TestMaskToken(t *testing.T) {
	for in, want := range map[string]string{
		"123456:ABCdef": "123456:****",
		"abc":           "****",
		"abcdefgh":      "abcd****",
	} {
		if got := supervisor.MaskToken(in); got != want {
			t.Errorf("MaskToken(%q) = %q, want %q", in, got, want)
		}
	}
}
