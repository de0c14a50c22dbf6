package control

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jdelaire/osonbot/core/supervisor"
)

const (
	MaxPayloadBytes = 8192
	MaxTokenLen     = 128
	MaxTriggerLen   = 256
	MaxResponseLen  = 4096
	CurrentVersion  = 1
)

const (
	ActionAddBot     = "add_bot"
	ActionAddCommand = "add_command"
	ActionRemoveBot  = "remove_bot"
	ActionListBots   = "list_bots"
)

// Request is the JSON envelope sent over the socket.
type Request struct {
	Version int             `json:"version"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AddBotPayload is the payload of add_bot.
type AddBotPayload struct {
	Token   string `json:"token"`
	OwnerID int64  `json:"owner_id"`
}

// AddCommandPayload is the payload of add_command.
type AddCommandPayload struct {
	Token    string `json:"token"`
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}

// RemoveBotPayload is the payload of remove_bot.
type RemoveBotPayload struct {
	Token string `json:"token"`
}

// Response is the JSON envelope sent back to the client. ID identifies the
// request in server logs.
type Response struct {
	OK    bool              `json:"ok"`
	Error string            `json:"error,omitempty"`
	ID    string            `json:"id,omitempty"`
	Added bool              `json:"added,omitempty"`
	Bots  []supervisor.Info `json:"bots,omitempty"`
}

// ValidateRequest checks the envelope and the payload of known actions.
func ValidateRequest(data []byte) (*Request, error) {
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("payload exceeds %d byte limit", MaxPayloadBytes)
	}

	var req Request
	if err := decodeStrict(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if req.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported version %d, expected %d", req.Version, CurrentVersion)
	}

	var err error
	switch req.Action {
	case ActionAddBot:
		_, err = ParseAddBot(req.Payload)
	case ActionAddCommand:
		_, err = ParseAddCommand(req.Payload)
	case ActionRemoveBot:
		_, err = ParseRemoveBot(req.Payload)
	case ActionListBots:
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ParseAddBot decodes and validates an add_bot payload.
func ParseAddBot(raw json.RawMessage) (AddBotPayload, error) {
	var p AddBotPayload
	if err := decodePayload(raw, &p); err != nil {
		return p, err
	}
	return p, checkToken(p.Token)
}

// ParseAddCommand decodes and validates an add_command payload.
func ParseAddCommand(raw json.RawMessage) (AddCommandPayload, error) {
	var p AddCommandPayload
	if err := decodePayload(raw, &p); err != nil {
		return p, err
	}
	if err := checkToken(p.Token); err != nil {
		return p, err
	}
	switch {
	case p.Trigger == "":
		return p, fmt.Errorf("trigger is required")
	case len(p.Trigger) > MaxTriggerLen:
		return p, fmt.Errorf("trigger exceeds %d character limit", MaxTriggerLen)
	case p.Response == "":
		return p, fmt.Errorf("response is required")
	case len(p.Response) > MaxResponseLen:
		return p, fmt.Errorf("response exceeds %d character limit", MaxResponseLen)
	}
	return p, nil
}

// ParseRemoveBot decodes and validates a remove_bot payload.
func ParseRemoveBot(raw json.RawMessage) (RemoveBotPayload, error) {
	var p RemoveBotPayload
	if err := decodePayload(raw, &p); err != nil {
		return p, err
	}
	return p, checkToken(p.Token)
}

func checkToken(token string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	if len(token) > MaxTokenLen {
		return fmt.Errorf("token exceeds %d character limit", MaxTokenLen)
	}
	return nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if raw == nil {
		return fmt.Errorf("missing payload")
	}
	if err := decodeStrict(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
