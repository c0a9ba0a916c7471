// Package slack implements the chat-platform collaborators for Slack using
// the plain Web API over HTTP: event intake via the Events API callback
// endpoint, replies via chat.postMessage, thread fetch via
// conversations.replies and workspace search via search.messages.
//
// The adapter implements core.Source, core.Sink, core.ThreadFetcher and
// core.Searcher. Search requires a user token; everything else uses the bot
// token.
package slack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

// DefaultAPIBase is the Slack Web API root.
const DefaultAPIBase = "https://slack.com/api"

// dedupeWindow bounds the remembered event id set.
const dedupeWindow = 1024

// Config holds Slack adapter configuration.
type Config struct {
	// BotToken is the Bot User OAuth Token (xoxb-...).
	BotToken string `yaml:"bot_token"`

	// UserToken is a user OAuth token (xoxp-...) required by search.messages.
	UserToken string `yaml:"user_token"`

	// SigningSecret verifies Events API callback signatures. Verification is
	// skipped when empty; only do that behind a trusted fronting proxy.
	SigningSecret string `yaml:"signing_secret"`

	// AllowedChannels restricts which channel IDs the bot responds in.
	// Empty means respond in all channels.
	AllowedChannels []string `yaml:"allowed_channels"`

	// APIBase overrides the Web API root, for tests.
	APIBase string `yaml:"-"`
}

// Slack is the Web API adapter. Safe for concurrent use.
type Slack struct {
	cfg    Config
	logger logging.Logger
	client *http.Client

	// botUserID is the bot's own user ID, resolved by Connect via auth.test
	// and used upstream to ignore the bot's echoed messages.
	botUserID string

	events chan core.RawEvent

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// New creates a Slack adapter.
func New(cfg Config, logger logging.Logger) *Slack {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	return &Slack{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
		events: make(chan core.RawEvent, 256),
		seen:   make(map[string]struct{}, dedupeWindow),
	}
}

// Connect resolves the bot identity via auth.test.
func (s *Slack) Connect(ctx context.Context) error {
	if s.cfg.BotToken == "" {
		return fmt.Errorf("%w: slack bot_token is required", core.ErrInvalidRequest)
	}
	var resp struct {
		apiResponse
		UserID string `json:"user_id"`
		User   string `json:"user"`
		Team   string `json:"team"`
	}
	if err := s.call(ctx, "auth.test", s.cfg.BotToken, nil, &resp); err != nil {
		return fmt.Errorf("slack auth.test failed: %w", err)
	}
	s.botUserID = resp.UserID
	s.logger.Info("slack connected", "bot", resp.User, "team", resp.Team, "user_id", resp.UserID)
	return nil
}

// BotUserID returns the identity resolved by Connect.
func (s *Slack) BotUserID() string { return s.botUserID }

// Events implements core.Source.
func (s *Slack) Events() <-chan core.RawEvent { return s.events }

// Send implements core.Sink via chat.postMessage.
func (s *Slack) Send(ctx context.Context, reply core.OutboundReply) error {
	payload := map[string]any{
		"channel": reply.Channel,
		"text":    reply.Text,
	}
	if reply.ThreadTS != "" {
		payload["thread_ts"] = reply.ThreadTS
	}
	var resp apiResponse
	return s.call(ctx, "chat.postMessage", s.cfg.BotToken, payload, &resp)
}

// FetchThread implements core.ThreadFetcher via conversations.replies,
// returning messages oldest first.
func (s *Slack) FetchThread(ctx context.Context, channel, threadTS string) ([]core.ThreadMessage, error) {
	params := url.Values{"channel": {channel}, "ts": {threadTS}, "limit": {"200"}}
	var resp struct {
		apiResponse
		Messages []struct {
			User string `json:"user"`
			Text string `json:"text"`
			TS   string `json:"ts"`
		} `json:"messages"`
	}
	if err := s.get(ctx, "conversations.replies", s.cfg.BotToken, params, &resp); err != nil {
		return nil, err
	}
	msgs := make([]core.ThreadMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, core.ThreadMessage{User: m.User, Text: m.Text, TS: m.TS})
	}
	return msgs, nil
}

// Search implements core.Searcher via search.messages. Requires UserToken.
func (s *Slack) Search(ctx context.Context, query string, limit int) ([]core.SearchResult, error) {
	if s.cfg.UserToken == "" {
		return nil, fmt.Errorf("%w: slack user_token is required for search", core.ErrInvalidRequest)
	}
	params := url.Values{"query": {query}, "count": {strconv.Itoa(limit)}}
	var resp struct {
		apiResponse
		Messages struct {
			Matches []struct {
				IID     string `json:"iid"`
				Channel struct {
					Name string `json:"name"`
				} `json:"channel"`
				User      string  `json:"user"`
				Text      string  `json:"text"`
				Permalink string  `json:"permalink"`
				Score     float64 `json:"score"`
				TS        string  `json:"ts"`
			} `json:"matches"`
		} `json:"messages"`
	}
	if err := s.get(ctx, "search.messages", s.cfg.UserToken, params, &resp); err != nil {
		return nil, err
	}
	results := make([]core.SearchResult, 0, len(resp.Messages.Matches))
	for _, m := range resp.Messages.Matches {
		results = append(results, core.SearchResult{
			Ref:       m.TS,
			Channel:   m.Channel.Name,
			User:      m.User,
			Text:      m.Text,
			Score:     m.Score,
			Permalink: m.Permalink,
		})
	}
	return results, nil
}

// EventsHandler returns the HTTP handler for Slack Events API callbacks.
// It answers url_verification challenges and converts event callbacks into
// core.RawEvent values, deduplicating on event id.
func (s *Slack) EventsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}
		if !s.verifySignature(r.Header, body) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var envelope struct {
			Type      string `json:"type"`
			Challenge string `json:"challenge"`
			EventID   string `json:"event_id"`
			Event     struct {
				Type        string `json:"type"`
				Subtype     string `json:"subtype"`
				Channel     string `json:"channel"`
				ChannelType string `json:"channel_type"`
				User        string `json:"user"`
				Text        string `json:"text"`
				TS          string `json:"ts"`
				ThreadTS    string `json:"thread_ts"`
			} `json:"event"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}

		switch envelope.Type {
		case "url_verification":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(envelope.Challenge))
			return
		case "event_callback":
			// Acknowledge immediately; Slack retries on slow responses.
			w.WriteHeader(http.StatusOK)
			if s.duplicate(envelope.EventID) {
				s.logger.Debug("duplicate event suppressed", "event_id", envelope.EventID)
				return
			}
			if !s.channelAllowed(envelope.Event.Channel) {
				return
			}
			ev := core.RawEvent{
				ID:          envelope.EventID,
				Type:        eventType(envelope.Event.Type, envelope.Event.ChannelType, envelope.Event.ThreadTS, envelope.Event.TS),
				Channel:     envelope.Event.Channel,
				ChannelType: envelope.Event.ChannelType,
				ThreadTS:    envelope.Event.ThreadTS,
				User:        envelope.Event.User,
				Text:        envelope.Event.Text,
				TS:          envelope.Event.TS,
				Subtype:     envelope.Event.Subtype,
			}
			select {
			case s.events <- ev:
			default:
				s.logger.Warn("event buffer full, dropping event", "event_id", envelope.EventID)
			}
			return
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
}

// verifySignature checks the Events API request signature: HMAC-SHA256 of
// "v0:<timestamp>:<body>" keyed by the signing secret. Requests older than
// five minutes are rejected to block replays.
func (s *Slack) verifySignature(header http.Header, body []byte) bool {
	if s.cfg.SigningSecret == "" {
		return true
	}
	tsHeader := header.Get("X-Slack-Request-Timestamp")
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(ts, 0)); d > 5*time.Minute || d < -5*time.Minute {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.SigningSecret))
	fmt.Fprintf(mac, "v0:%s:", tsHeader)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(header.Get("X-Slack-Signature")))
}

// duplicate records the event id and reports whether it was already seen.
// The remembered set is a bounded FIFO window.
func (s *Slack) duplicate(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > dedupeWindow {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return false
}

func (s *Slack) channelAllowed(channel string) bool {
	if len(s.cfg.AllowedChannels) == 0 {
		return true
	}
	for _, c := range s.cfg.AllowedChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// eventType maps Slack event fields onto the core classification.
func eventType(slackType, channelType, threadTS, ts string) core.EventType {
	switch {
	case channelType == "im":
		return core.EventDirectMessage
	case threadTS != "" && threadTS != ts:
		return core.EventThreadReply
	case slackType == "app_mention":
		return core.EventMention
	default:
		return core.EventMention
	}
}

// apiResponse is the shared ok/error envelope of Slack Web API responses.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r apiResponse) ok() bool { return r.OK }
func (r apiResponse) apiErr() string { return r.Error }

type slackResponse interface {
	ok() bool
	apiErr() string
}

// call POSTs a JSON payload to a Web API method and decodes the response.
func (s *Slack) call(ctx context.Context, method, token string, payload map[string]any, out slackResponse) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: encoding %s payload: %v", core.ErrInvalidRequest, method, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBase+"/"+method, body)
	if err != nil {
		return fmt.Errorf("%w: building %s request: %v", core.ErrInvalidRequest, method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.do(req, method, out)
}

// get issues a form-encoded GET to a Web API method and decodes the response.
func (s *Slack) get(ctx context.Context, method, token string, params url.Values, out slackResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIBase+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: building %s request: %v", core.ErrInvalidRequest, method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return s.do(req, method, out)
}

func (s *Slack) do(req *http.Request, method string, out slackResponse) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: slack %s: %v", core.ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: slack %s", core.ErrRateLimited, method)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: slack %s: status %d", core.ErrUnavailable, method, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding slack %s response: %v", core.ErrUnavailable, method, err)
	}
	if !out.ok() {
		return mapAPIError(method, out.apiErr())
	}
	return nil
}

// mapAPIError folds Slack ok:false error codes onto the core taxonomy.
func mapAPIError(method, code string) error {
	switch code {
	case "ratelimited", "rate_limited":
		return fmt.Errorf("%w: slack %s: %s", core.ErrRateLimited, method, code)
	case "channel_not_found", "thread_not_found", "message_not_found", "not_in_channel":
		return fmt.Errorf("%w: slack %s: %s", core.ErrNotFound, method, code)
	case "invalid_auth", "not_authed", "token_revoked", "missing_scope", "invalid_arguments":
		return fmt.Errorf("%w: slack %s: %s", core.ErrInvalidRequest, method, code)
	default:
		return fmt.Errorf("%w: slack %s: %s", core.ErrUnavailable, method, code)
	}
}
