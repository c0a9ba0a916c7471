package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haystackbot/haystack/capability"
	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/normalize"
	"github.com/haystackbot/haystack/router"
	"github.com/haystackbot/haystack/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = "UBOT"

type captureSink struct {
	mu      sync.Mutex
	replies []core.OutboundReply
}

func (s *captureSink) Send(_ context.Context, reply core.OutboundReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	return nil
}

func (s *captureSink) all() []core.OutboundReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.OutboundReply, len(s.replies))
	copy(out, s.replies)
	return out
}

// echoExecutor replies with the turn text; optional gate blocks execution
// until released so tests can observe concurrency deterministically.
type echoExecutor struct {
	entered chan string
	release chan struct{}
}

func (e *echoExecutor) Execute(_ context.Context, turn core.InboundTurn, _ *core.Session) core.OutboundReply {
	if e.entered != nil {
		e.entered <- turn.ConversationKey
		<-e.release
	}
	return core.OutboundReply{
		ConversationKey: turn.ConversationKey,
		Channel:         turn.Channel,
		Text:            "echo: " + turn.Text,
		ThreadTS:        turn.ThreadTS,
	}
}

func echoDescriptors(exec core.Executor) []core.Descriptor {
	return []core.Descriptor{
		{Name: core.CapabilitySearchSummarize, Executor: exec},
		{Name: core.CapabilityThreadSummarize, Executor: exec},
		{Name: core.CapabilityWorkflowRecommend, Executor: exec},
		{Name: core.CapabilityGeneralChat, Executor: exec},
	}
}

func mention(id int, channel, threadTS, text string) core.RawEvent {
	ev := core.RawEvent{
		ID:      fmt.Sprintf("Ev%d", id),
		Type:    core.EventMention,
		Channel: channel,
		User:    "U1",
		Text:    "<@UBOT> " + text,
		TS:      fmt.Sprintf("1700000%03d.000000", id),
	}
	if threadTS != "" {
		ev.Type = core.EventThreadReply
		ev.ThreadTS = threadTS
	}
	return ev
}

func TestEngine_SameKeyTurnsStayOrdered(t *testing.T) {
	store := session.NewInMemoryStore()
	sink := &captureSink{}
	eng := New(normalize.New(botID), store, router.New(echoDescriptors(&echoExecutor{})), sink)

	// All replies to the same thread root land on one conversation key.
	for i := 0; i < 20; i++ {
		eng.Submit(mention(i+1, "C1", "1700000000.000001", fmt.Sprintf("turn-%d", i)))
	}
	eng.Wait()

	replies := sink.all()
	require.Len(t, replies, 20)
	for i, r := range replies {
		assert.Equal(t, fmt.Sprintf("echo: turn-%d", i), r.Text)
	}

	history := store.GetOrCreate("chan:C1:1700000000.000001").History()
	require.Len(t, history, 20)
	last := uint64(0)
	for _, ex := range history {
		assert.Greater(t, ex.Turn.Seq, last)
		last = ex.Turn.Seq
	}
}

func TestEngine_DifferentKeysRunInParallel(t *testing.T) {
	exec := &echoExecutor{entered: make(chan string, 2), release: make(chan struct{})}
	sink := &captureSink{}
	eng := New(normalize.New(botID), session.NewInMemoryStore(), router.New(echoDescriptors(exec)), sink)

	eng.Submit(mention(1, "C1", "", "hello from one"))
	eng.Submit(mention(2, "C2", "", "hello from two"))

	// Both executors must enter before either is released: proof the lanes
	// did not serialize across keys.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case key := <-exec.entered:
			seen[key] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for parallel lane execution")
		}
	}
	close(exec.release)
	eng.Wait()

	assert.Len(t, seen, 2)
	assert.Len(t, sink.all(), 2)
}

func TestEngine_DroppedEventsProduceNothing(t *testing.T) {
	sink := &captureSink{}
	eng := New(normalize.New(botID), session.NewInMemoryStore(), router.New(echoDescriptors(&echoExecutor{})), sink)

	// Bot's own message and a channel message without a mention.
	eng.Submit(core.RawEvent{User: botID, Channel: "C1", Text: "my own reply", TS: "1.0"})
	eng.Submit(core.RawEvent{User: "U1", Channel: "C1", Text: "no mention here", TS: "2.0"})
	eng.Wait()

	assert.Empty(t, sink.all())
}

type panicExecutor struct{}

func (panicExecutor) Execute(context.Context, core.InboundTurn, *core.Session) core.OutboundReply {
	panic("executor bug")
}

func TestEngine_PanicInOneLaneDoesNotAffectOthers(t *testing.T) {
	store := session.NewInMemoryStore()
	sink := &captureSink{}
	descriptors := []core.Descriptor{
		{Name: core.CapabilitySearchSummarize, Executor: panicExecutor{}},
		{Name: core.CapabilityThreadSummarize, Executor: panicExecutor{}},
		{Name: core.CapabilityWorkflowRecommend, Executor: panicExecutor{}},
		{Name: core.CapabilityGeneralChat, Executor: &echoExecutor{}},
	}
	eng := New(normalize.New(botID), store, router.New(descriptors), sink)

	// First turn routes to search-summarize and panics; the second, on a
	// different key, must still be answered.
	eng.Submit(mention(1, "C1", "", "find the runbook"))
	eng.Submit(mention(2, "C2", "", "good morning"))
	eng.Wait()

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Equal(t, "echo: good morning", replies[0].Text)
}

type emptySearcher struct{}

func (emptySearcher) Search(context.Context, string, int) ([]core.SearchResult, error) {
	return nil, nil
}

func TestEngine_EndToEndEmptySearch(t *testing.T) {
	backend := completion.NewMockBackend()
	client := completion.NewClient(backend)
	searchExec := capability.NewSearchSummarize(client, emptySearcher{}, func(o *capability.SearchSummarizeOptions) {
		o.RefineQueries = false
	})
	chatExec := capability.NewGeneralChat(client, nil)
	workflowExec, err := capability.NewWorkflowRecommend(client)
	require.NoError(t, err)

	descriptors := []core.Descriptor{
		{Name: core.CapabilitySearchSummarize, Executor: searchExec},
		{Name: core.CapabilityThreadSummarize, Executor: chatExec},
		{Name: core.CapabilityWorkflowRecommend, Executor: workflowExec},
		{Name: core.CapabilityGeneralChat, Executor: chatExec},
	}
	sink := &captureSink{}
	eng := New(normalize.New(botID), session.NewInMemoryStore(), router.New(descriptors), sink)

	eng.Submit(mention(1, "C1", "", "find asdkjasdkj"))
	eng.Wait()

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Contains(t, strings.ToLower(replies[0].Text), "no results found")
	assert.Zero(t, backend.Calls(), "empty search results must not invoke the completion client")
}

func TestEngine_StickyCapabilityAcrossThreadTurns(t *testing.T) {
	store := session.NewInMemoryStore()
	var routed []core.Capability
	var mu sync.Mutex
	record := func(name core.Capability) core.Executor {
		return executorFunc(func(turn core.InboundTurn) core.OutboundReply {
			mu.Lock()
			routed = append(routed, name)
			mu.Unlock()
			return core.OutboundReply{ConversationKey: turn.ConversationKey, Text: "ok"}
		})
	}
	descriptors := []core.Descriptor{
		{Name: core.CapabilitySearchSummarize, Executor: record(core.CapabilitySearchSummarize)},
		{Name: core.CapabilityThreadSummarize, Executor: record(core.CapabilityThreadSummarize)},
		{Name: core.CapabilityWorkflowRecommend, Executor: record(core.CapabilityWorkflowRecommend)},
		{Name: core.CapabilityGeneralChat, Executor: record(core.CapabilityGeneralChat)},
	}
	eng := New(normalize.New(botID), store, router.New(descriptors), &captureSink{})

	root := "1700000000.000001"
	// The mention selects thread-summarize; the follow-up would match the
	// search rules but must stick to the active capability.
	eng.Submit(mention(1, "C1", root, "summarize this thread"))
	eng.Submit(mention(2, "C1", root, "find anything about the rollout?"))
	eng.Wait()

	require.Equal(t, []core.Capability{core.CapabilityThreadSummarize, core.CapabilityThreadSummarize}, routed)
}

// recordingStore wraps a SessionStore and records ClearCapability calls.
type recordingStore struct {
	core.SessionStore
	mu      sync.Mutex
	cleared []string
}

func (r *recordingStore) ClearCapability(key string) {
	r.mu.Lock()
	r.cleared = append(r.cleared, key)
	r.mu.Unlock()
	r.SessionStore.ClearCapability(key)
}

func (r *recordingStore) clearedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cleared))
	copy(out, r.cleared)
	return out
}

func TestEngine_TopLevelTurnClearsCapability(t *testing.T) {
	store := &recordingStore{SessionStore: session.NewInMemoryStore()}
	eng := New(normalize.New(botID), store, router.New(echoDescriptors(&echoExecutor{})), &captureSink{})

	root := "1700000000.000001"
	// Threaded follow-ups keep continuity; a fresh top-level mention ends it.
	eng.Submit(mention(1, "C1", root, "summarize this thread"))
	eng.Submit(mention(2, "C1", root, "and the decisions?"))
	eng.Submit(mention(3, "C1", "", "good morning"))
	eng.Wait()

	cleared := store.clearedKeys()
	require.Len(t, cleared, 1)
	assert.Equal(t, "chan:C1:1700000003.000000", cleared[0])
}

type executorFunc func(turn core.InboundTurn) core.OutboundReply

func (f executorFunc) Execute(_ context.Context, turn core.InboundTurn, _ *core.Session) core.OutboundReply {
	return f(turn)
}
