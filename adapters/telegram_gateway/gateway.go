package telegram_gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/ratelimit"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultPollTimeout = 30 * time.Second
	pollSlack          = 5 * time.Second
	errorBackoff       = 5 * time.Second
	maxRetryAfter      = 5 * time.Second

	// Telegram allows roughly 30 messages per second per bot.
	defaultSendRate  = 30
	defaultSendBurst = 30
)

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Gateway talks to the Telegram Bot API for one token.
type Gateway struct {
	token       string
	logger      *slog.Logger
	client      *http.Client
	baseURL     string
	pollTimeout time.Duration
	backoff     time.Duration
	limiter     *rate.Limiter
	chats       *ratelimit.Limiter
}

var _ core.Gateway = (*Gateway)(nil)

// New creates a gateway for botToken.
func New(botToken string, logger *slog.Logger) *Gateway {
	return &Gateway{
		token:       botToken,
		logger:      logger,
		client:      &http.Client{Timeout: defaultPollTimeout + pollSlack},
		baseURL:     defaultBaseURL,
		pollTimeout: defaultPollTimeout,
		backoff:     errorBackoff,
		limiter:     rate.NewLimiter(rate.Limit(defaultSendRate), defaultSendBurst),
		chats:       ratelimit.New(),
	}
}

// WithBaseURL overrides the Telegram API base URL (for testing or a local
// Bot API server).
func (g *Gateway) WithBaseURL(baseURL string) *Gateway {
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

// WithPollTimeout sets the server-side long-poll window.
func (g *Gateway) WithPollTimeout(d time.Duration) *Gateway {
	if d > 0 {
		g.pollTimeout = d
		g.client.Timeout = d + pollSlack
	}
	return g
}

// WithErrorBackoff sets the pause after a failed poll.
func (g *Gateway) WithErrorBackoff(d time.Duration) *Gateway {
	g.backoff = d
	return g
}

// WithRateLimit throttles send calls to perSecond with the given burst.
func (g *Gateway) WithRateLimit(perSecond float64, burst int) *Gateway {
	if perSecond > 0 && burst > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return g
}

// GetMe returns the bot identity. A rejected token yields core.ErrUnauthorized.
func (g *Gateway) GetMe(ctx context.Context) (core.BotIdentity, error) {
	raw, err := g.call(ctx, http.MethodGet, "getMe", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound) {
			return core.BotIdentity{}, fmt.Errorf("%w: %s", core.ErrUnauthorized, apiErr.Description)
		}
		return core.BotIdentity{}, err
	}

	var me core.BotIdentity
	if err := json.Unmarshal(raw, &me); err != nil {
		return core.BotIdentity{}, fmt.Errorf("decode getMe: %w", err)
	}
	return me, nil
}

// FetchUpdates long-polls for updates starting at offset. Failures are
// logged and yield an empty batch; non-timeout failures also wait out the
// error backoff so a dead network does not spin the caller's loop.
func (g *Gateway) FetchUpdates(ctx context.Context, offset int64) []core.Update {
	q := url.Values{}
	q.Set("offset", fmt.Sprint(offset))
	q.Set("timeout", fmt.Sprint(int(g.pollTimeout.Seconds())))

	reqCtx, cancel := context.WithTimeout(ctx, g.pollTimeout+pollSlack)
	defer cancel()

	raw, err := g.call(reqCtx, http.MethodGet, "getUpdates?"+q.Encode(), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if isTimeout(err) {
			g.logger.Debug("poll timed out", "offset", offset)
			return nil
		}
		g.logger.Error("poll error", "offset", offset, "error", err)
		g.sleep(ctx, g.backoff)
		return nil
	}

	var updates []core.Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		g.logger.Error("decode updates", "error", err)
		return nil
	}
	return updates
}

func (g *Gateway) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// requestBody builds a fresh request body for each attempt.
type requestBody func() (io.Reader, string, error)

// call performs one API method and returns its result. A 429 whose
// retry_after fits within maxRetryAfter is retried once.
func (g *Gateway) call(ctx context.Context, httpMethod, method string, body requestBody) (json.RawMessage, error) {
	raw, err := g.do(ctx, httpMethod, method, body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests &&
		apiErr.RetryAfter > 0 && apiErr.RetryAfter <= maxRetryAfter {
		g.logger.Warn("rate limited by api, retrying", "method", apiErr.Method, "retry_after", apiErr.RetryAfter)
		g.sleep(ctx, apiErr.RetryAfter)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return g.do(ctx, httpMethod, method, body)
	}
	return raw, err
}

func (g *Gateway) do(ctx context.Context, httpMethod, method string, body requestBody) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", g.baseURL, g.token, method)

	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		var err error
		if reader, contentType, err = body(); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", strings.ToLower(httpMethod), redact(err, g.token))
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if !apiResp.OK {
		name, _, _ := strings.Cut(method, "?")
		apiErr := &APIError{Method: name, Code: apiResp.ErrorCode, Description: apiResp.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
		}
		return nil, apiErr
	}

	return apiResp.Result, nil
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	var urlErr *url.Error
	if token == "" || !errors.As(err, &urlErr) {
		return err
	}
	return &url.Error{
		Op:  urlErr.Op,
		URL: strings.ReplaceAll(urlErr.URL, token, "<token>"),
		Err: urlErr.Err,
	}
}
