package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/approval"
	"github.com/jdelaire/osonbot/core/supervisor"
)

const opTimeout = 30 * time.Second

var tokenRe = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{20,}$`)

// Supervisor is the part of supervisor.Supervisor the builder drives.
type Supervisor interface {
	AddInstance(token string, owner int64) (bool, error)
	RegisterCommand(token, trigger, response string) error
	RemoveInstance(token string) error
	InstanceForOwner(owner int64) (supervisor.Info, bool)
	Instances() []supervisor.Info
}

// Verifier checks a one-time admin code.
type Verifier interface {
	Verify(code string) bool
}

// Handler answers every text message sent to the builder bot by running the
// matching op. Mount it as the builder registry's wildcard.
func Handler(reg *Registry, logger *slog.Logger) core.Computed {
	return func(ctx context.Context, u core.Update) (core.Payload, error) {
		msg := u.Message
		if msg == nil {
			return nil, nil
		}

		cmd, args := ParseCommand(msg.Text)
		if cmd == "" {
			return core.Text("Send /help for available commands."), nil
		}
		if cmd == "start" {
			cmd = "help"
		}

		op := reg.Get(cmd)
		if op == nil {
			return core.Text(fmt.Sprintf("Unknown command: /%s\nSend /help for available commands.", cmd)), nil
		}

		req := Request{ChatID: msg.Chat.ID, UserID: msg.Chat.ID, Args: args}
		if msg.From != nil {
			req.UserID = msg.From.ID
		}

		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		result, err := op.Execute(ctx, req)
		if err != nil {
			logger.Error("op failed", "op", cmd, "user_id", req.UserID, "error", err)
			return core.Text(fmt.Sprintf("Error running /%s: %s", cmd, err)), nil
		}
		return core.Text(result), nil
	}
}

// NewBotOp registers a bot token for the caller. Each user owns one bot.
type NewBotOp struct {
	Bots Supervisor
}

func (o *NewBotOp) Name() string        { return "newbot" }
func (o *NewBotOp) Description() string { return "Register your bot: /newbot <token>" }

func (o *NewBotOp) Execute(_ context.Context, req Request) (string, error) {
	token := req.Args
	if token == "" {
		return "Usage: /newbot <token>\nGet a token from @BotFather.", nil
	}
	if !tokenRe.MatchString(token) {
		return "That does not look like a bot token.", nil
	}
	if info, ok := o.Bots.InstanceForOwner(req.UserID); ok {
		return fmt.Sprintf("You already have a bot (%s). Remove it with /delbot first.", botName(info)), nil
	}

	added, err := o.Bots.AddInstance(token, req.UserID)
	if err != nil {
		return "", fmt.Errorf("add bot: %w", err)
	}
	if !added {
		return "This token is already registered.", nil
	}
	return "✅ Bot added. Teach it with /when <trigger> = <response>.", nil
}

// WhenOp adds a static command to the caller's bot.
type WhenOp struct {
	Bots Supervisor
}

func (o *WhenOp) Name() string        { return "when" }
func (o *WhenOp) Description() string { return "Teach your bot: /when <trigger> = <response>" }

func (o *WhenOp) Execute(_ context.Context, req Request) (string, error) {
	trigger, response, ok := strings.Cut(req.Args, "=")
	trigger, response = strings.TrimSpace(trigger), strings.TrimSpace(response)
	if !ok || trigger == "" || response == "" {
		return "Usage: /when <trigger> = <response>\nUse * as the trigger to answer any other text.", nil
	}

	info, found := o.Bots.InstanceForOwner(req.UserID)
	if !found {
		return "You don't have a bot yet. Create one with /newbot <token>.", nil
	}
	if err := o.Bots.RegisterCommand(info.Token, trigger, response); err != nil {
		return "", fmt.Errorf("register command: %w", err)
	}
	return fmt.Sprintf("✅ %s now answers %q.", botName(info), trigger), nil
}

// MyBotOp shows the caller's bot.
type MyBotOp struct {
	Bots Supervisor
}

func (o *MyBotOp) Name() string        { return "mybot" }
func (o *MyBotOp) Description() string { return "Show your bot" }

func (o *MyBotOp) Execute(_ context.Context, req Request) (string, error) {
	info, ok := o.Bots.InstanceForOwner(req.UserID)
	if !ok {
		return "You don't have a bot yet. Create one with /newbot <token>.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Bot: %s\nToken: %s\nStatus: %s\nCommands: %d", botName(info), info.TokenHint, info.Status, info.Commands)
	if info.Error != "" {
		fmt.Fprintf(&b, "\nError: %s", info.Error)
	}
	return b.String(), nil
}

// DelBotOp deletes the caller's bot after a confirmation round trip.
type DelBotOp struct {
	Bots    Supervisor
	Confirm *approval.Store
}

func (o *DelBotOp) Name() string        { return "delbot" }
func (o *DelBotOp) Description() string { return "Delete your bot" }

func (o *DelBotOp) Execute(_ context.Context, req Request) (string, error) {
	if req.Args == "" {
		info, ok := o.Bots.InstanceForOwner(req.UserID)
		if !ok {
			return "You don't have a bot.", nil
		}
		code, err := o.Confirm.Create(req.ChatID, o.Name(), info.Token)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Send /delbot %s within 2 minutes to delete %s.", code, botName(info)), nil
	}

	_, token, err := o.Confirm.Consume(req.Args, req.ChatID)
	if err != nil {
		return "That confirmation code is invalid or expired.", nil
	}
	if err := o.Bots.RemoveInstance(token); err != nil {
		if errors.Is(err, supervisor.ErrUnknownBot) {
			return "That bot was already deleted.", nil
		}
		return "", fmt.Errorf("remove bot: %w", err)
	}
	return "🗑 Bot deleted.", nil
}

// BotsOp lists every supervised bot. It requires a one-time admin code.
type BotsOp struct {
	Bots  Supervisor
	Admin Verifier
}

func (o *BotsOp) Name() string        { return "bots" }
func (o *BotsOp) Description() string { return "List all bots (admin): /bots <code>" }

func (o *BotsOp) Execute(_ context.Context, req Request) (string, error) {
	if o.Admin == nil || !o.Admin.Verify(req.Args) {
		return "Invalid admin code.", nil
	}

	all := o.Bots.Instances()
	if len(all) == 0 {
		return "No bots registered.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d bots:\n", len(all))
	for _, info := range all {
		fmt.Fprintf(&b, "  %s owner=%d status=%s commands=%d\n", botName(info), info.OwnerID, info.Status, info.Commands)
	}
	return b.String(), nil
}

// Builder holds the dependencies of the builder bot's ops.
type Builder struct {
	Bots  Supervisor
	Admin Verifier
}

// Registry returns an op registry with every builder command. The admin
// listing is only present when an admin verifier is configured.
func (b Builder) Registry() *Registry {
	reg := NewRegistry()
	confirm := approval.New()
	for _, op := range []Op{
		&HelpOp{Registry: reg},
		&StatusOp{Bots: b.Bots},
		&NewBotOp{Bots: b.Bots},
		&WhenOp{Bots: b.Bots},
		&MyBotOp{Bots: b.Bots},
		&DelBotOp{Bots: b.Bots, Confirm: confirm},
	} {
		reg.Register(op)
	}
	if b.Admin != nil {
		reg.Register(&BotsOp{Bots: b.Bots, Admin: b.Admin})
	}
	return reg
}

func botName(info supervisor.Info) string {
	if info.Username != "" {
		return "@" + info.Username
	}
	return info.TokenHint
}
