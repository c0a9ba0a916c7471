package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/haystackbot/haystack/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Sink          = (*Slack)(nil)
	_ core.Source        = (*Slack)(nil)
	_ core.Searcher      = (*Slack)(nil)
	_ core.ThreadFetcher = (*Slack)(nil)
)

// fakeAPI records the last request per method and serves canned responses.
type fakeAPI struct {
	t         *testing.T
	responses map[string]string
	status    map[string]int
	lastBody  map[string]string
	lastQuery map[string]url.Values
	lastAuth  map[string]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:         t,
		responses: map[string]string{},
		status:    map[string]int{},
		lastBody:  map[string]string{},
		lastQuery: map[string]url.Values{},
		lastAuth:  map[string]string{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/")
	body, _ := io.ReadAll(r.Body)
	f.lastBody[method] = string(body)
	f.lastQuery[method] = r.URL.Query()
	f.lastAuth[method] = r.Header.Get("Authorization")

	if code, ok := f.status[method]; ok {
		w.WriteHeader(code)
		return
	}
	resp, ok := f.responses[method]
	if !ok {
		f.t.Errorf("unexpected api call %q", method)
		resp = `{"ok": false, "error": "unknown_method"}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(resp))
}

func newTestSlack(t *testing.T, api *fakeAPI) *Slack {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(Config{
		BotToken:  "xoxb-test",
		UserToken: "xoxp-test",
		APIBase:   srv.URL,
	}, nil)
}

func TestConnect_ResolvesBotIdentity(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["auth.test"] = `{"ok": true, "user_id": "UBOT", "user": "haystack", "team": "acme"}`
	s := newTestSlack(t, api)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "UBOT", s.BotUserID())
	assert.Equal(t, "Bearer xoxb-test", api.lastAuth["auth.test"])
}

func TestSend_PostsMessageWithThread(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["chat.postMessage"] = `{"ok": true}`
	s := newTestSlack(t, api)

	err := s.Send(context.Background(), core.OutboundReply{
		Channel:  "C1",
		Text:     "hello there",
		ThreadTS: "1700000000.1",
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.lastBody["chat.postMessage"]), &payload))
	assert.Equal(t, "C1", payload["channel"])
	assert.Equal(t, "hello there", payload["text"])
	assert.Equal(t, "1700000000.1", payload["thread_ts"])
}

func TestSend_OmitsThreadTSForTopLevelReplies(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["chat.postMessage"] = `{"ok": true}`
	s := newTestSlack(t, api)

	require.NoError(t, s.Send(context.Background(), core.OutboundReply{Channel: "C1", Text: "hi"}))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.lastBody["chat.postMessage"]), &payload))
	_, ok := payload["thread_ts"]
	assert.False(t, ok)
}

func TestFetchThread_ReturnsMessagesOldestFirst(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["conversations.replies"] = `{"ok": true, "messages": [
		{"user": "U1", "text": "root", "ts": "1.0"},
		{"user": "U2", "text": "reply", "ts": "2.0"}
	]}`
	s := newTestSlack(t, api)

	msgs, err := s.FetchThread(context.Background(), "C1", "1.0")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.ThreadMessage{User: "U1", Text: "root", TS: "1.0"}, msgs[0])
	assert.Equal(t, "1.0", api.lastQuery["conversations.replies"].Get("ts"))
	assert.Equal(t, "C1", api.lastQuery["conversations.replies"].Get("channel"))
}

func TestSearch_MapsMatchesAndUsesUserToken(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["search.messages"] = `{"ok": true, "messages": {"matches": [
		{"ts": "3.0", "channel": {"name": "ops"}, "user": "UDANA", "text": "runbook v3",
		 "permalink": "https://chat.example/p1", "score": 0.92}
	]}}`
	s := newTestSlack(t, api)

	results, err := s.Search(context.Background(), "runbook", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ops", results[0].Channel)
	assert.Equal(t, "UDANA", results[0].User)
	assert.Equal(t, "https://chat.example/p1", results[0].Permalink)
	assert.Equal(t, "Bearer xoxp-test", api.lastAuth["search.messages"])
	assert.Equal(t, "10", api.lastQuery["search.messages"].Get("count"))
}

func TestSearch_RequiresUserToken(t *testing.T) {
	s := New(Config{BotToken: "xoxb-test"}, nil)
	_, err := s.Search(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		prep func(api *fakeAPI)
		want error
	}{
		{
			name: "http 429 is rate limited",
			prep: func(api *fakeAPI) { api.status["chat.postMessage"] = http.StatusTooManyRequests },
			want: core.ErrRateLimited,
		},
		{
			name: "http 503 is unavailable",
			prep: func(api *fakeAPI) { api.status["chat.postMessage"] = http.StatusServiceUnavailable },
			want: core.ErrUnavailable,
		},
		{
			name: "channel_not_found is not found",
			prep: func(api *fakeAPI) {
				api.responses["chat.postMessage"] = `{"ok": false, "error": "channel_not_found"}`
			},
			want: core.ErrNotFound,
		},
		{
			name: "ratelimited code is rate limited",
			prep: func(api *fakeAPI) {
				api.responses["chat.postMessage"] = `{"ok": false, "error": "ratelimited"}`
			},
			want: core.ErrRateLimited,
		},
		{
			name: "invalid_auth is invalid request",
			prep: func(api *fakeAPI) {
				api.responses["chat.postMessage"] = `{"ok": false, "error": "invalid_auth"}`
			},
			want: core.ErrInvalidRequest,
		},
		{
			name: "unknown code is unavailable",
			prep: func(api *fakeAPI) {
				api.responses["chat.postMessage"] = `{"ok": false, "error": "fatal_error"}`
			},
			want: core.ErrUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			tt.prep(api)
			s := newTestSlack(t, api)
			err := s.Send(context.Background(), core.OutboundReply{Channel: "C1", Text: "x"})
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func postEvent(t *testing.T, handler http.Handler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestEventsHandler_URLVerification(t *testing.T) {
	s := New(Config{BotToken: "xoxb-test"}, nil)
	rec := postEvent(t, s.EventsHandler(), `{"type": "url_verification", "challenge": "c0ffee"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c0ffee", rec.Body.String())
}

func TestEventsHandler_ConvertsEventCallback(t *testing.T) {
	s := New(Config{BotToken: "xoxb-test"}, nil)
	rec := postEvent(t, s.EventsHandler(), `{"type": "event_callback", "event_id": "Ev1", "event": {
		"type": "app_mention", "channel": "C1", "user": "U1",
		"text": "<@UBOT> find the runbook", "ts": "1700000000.1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case ev := <-s.Events():
		assert.Equal(t, "Ev1", ev.ID)
		assert.Equal(t, core.EventMention, ev.Type)
		assert.Equal(t, "C1", ev.Channel)
		assert.Equal(t, "<@UBOT> find the runbook", ev.Text)
	default:
		t.Fatal("expected an event on the channel")
	}
}

func TestEventsHandler_ClassifiesDMsAndThreadReplies(t *testing.T) {
	s := New(Config{BotToken: "xoxb-test"}, nil)

	postEvent(t, s.EventsHandler(), `{"type": "event_callback", "event_id": "Ev1", "event": {
		"type": "message", "channel": "D1", "channel_type": "im", "user": "U1",
		"text": "hello", "ts": "1.0"}}`)
	postEvent(t, s.EventsHandler(), `{"type": "event_callback", "event_id": "Ev2", "event": {
		"type": "message", "channel": "C1", "channel_type": "channel", "user": "U1",
		"text": "reply", "ts": "2.0", "thread_ts": "1.0"}}`)

	ev := <-s.Events()
	assert.Equal(t, core.EventDirectMessage, ev.Type)
	ev = <-s.Events()
	assert.Equal(t, core.EventThreadReply, ev.Type)
	assert.Equal(t, "1.0", ev.ThreadTS)
}

func TestEventsHandler_SuppressesDuplicateEventIDs(t *testing.T) {
	s := New(Config{BotToken: "xoxb-test"}, nil)
	payload := `{"type": "event_callback", "event_id": "Ev1", "event": {
		"type": "app_mention", "channel": "C1", "user": "U1", "text": "<@UBOT> hi", "ts": "1.0"}}`

	postEvent(t, s.EventsHandler(), payload)
	postEvent(t, s.EventsHandler(), payload)

	<-s.Events()
	select {
	case ev := <-s.Events():
		t.Fatalf("duplicate delivery of %s", ev.ID)
	default:
	}
}

func signEvent(secret, ts, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestEventsHandler_VerifiesSignatures(t *testing.T) {
	secret := "8f742231b10e8888abcd99yyyzzz85a5"
	s := New(Config{BotToken: "xoxb-test", SigningSecret: secret}, nil)
	body := `{"type": "event_callback", "event_id": "Ev1", "event": {
		"type": "app_mention", "channel": "C1", "user": "U1", "text": "<@UBOT> hi", "ts": "1.0"}}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("valid signature accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", signEvent(secret, ts, body))
		rec := httptest.NewRecorder()
		s.EventsHandler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		select {
		case ev := <-s.Events():
			assert.Equal(t, "Ev1", ev.ID)
		default:
			t.Fatal("signed event must be delivered")
		}
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", "v0=deadbeef")
		rec := httptest.NewRecorder()
		s.EventsHandler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		old := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", old)
		req.Header.Set("X-Slack-Signature", signEvent(secret, old, body))
		rec := httptest.NewRecorder()
		s.EventsHandler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestEventsHandler_FiltersDisallowedChannels(t *testing.T) {
	s := New(Config{BotToken: "xoxb-test", AllowedChannels: []string{"C-OK"}}, nil)

	postEvent(t, s.EventsHandler(), `{"type": "event_callback", "event_id": "Ev1", "event": {
		"type": "app_mention", "channel": "C-OTHER", "user": "U1", "text": "<@UBOT> hi", "ts": "1.0"}}`)
	postEvent(t, s.EventsHandler(), `{"type": "event_callback", "event_id": "Ev2", "event": {
		"type": "app_mention", "channel": "C-OK", "user": "U1", "text": "<@UBOT> hi", "ts": "2.0"}}`)

	ev := <-s.Events()
	assert.Equal(t, "Ev2", ev.ID)
	select {
	case <-s.Events():
		t.Fatal("disallowed channel event must be dropped")
	default:
	}
}
