package lmgo_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/providers/anthropic"
	"github.com/achieveai/lmgo/transport"
)

const anthropicTextResponse = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-haiku-4-5-20251001",
	"content": [{"type": "text", "text": "Hello from the model."}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 12, "output_tokens": 8, "cache_read_input_tokens": 4}
}`

const anthropicStreamBody = "event: message_start\n" +
	`data: {"type":"message_start","message":{"id":"msg_01","model":"claude-haiku-4-5-20251001","role":"assistant","usage":{"input_tokens":12,"output_tokens":0}}}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":0}` + "\n\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}` + "\n\n" +
	"event: message_stop\n" +
	`data: {"type":"message_stop"}` + "\n\n"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*lmgo.ChatClient, *transport.Tracker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	codec, err := anthropic.New("sk-ant-test", anthropic.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("anthropic.New: %v", err)
	}

	tracker := transport.NewTracker()
	exec := transport.NewExecutor(
		transport.WithTracker(tracker),
		transport.WithRetryPolicy(transport.RetryPolicy{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
		}),
		transport.WithLogger(slog.New(slog.DiscardHandler)),
	)
	client := lmgo.NewChatClient(codec,
		lmgo.WithExecutor(exec),
		lmgo.WithClientLogger(slog.New(slog.DiscardHandler)),
	)
	return client, tracker
}

func userTurn(text string) []lmgo.Message {
	return []lmgo.Message{lmgo.TextMessage{Role: lmgo.RoleUser, Text: text}}
}

func TestChatClientSend(t *testing.T) {
	client, tracker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "sk-ant-test" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(anthropicTextResponse))
	})

	out, err := client.Send(context.Background(), userTurn("Hi"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("messages = %d, want text + usage", len(out))
	}
	text, ok := out[0].(lmgo.TextMessage)
	if !ok || text.Text != "Hello from the model." {
		t.Errorf("first message = %#v", out[0])
	}
	usage, ok := out[1].(lmgo.UsageMessage)
	if !ok || usage.PromptTokens != 12 || usage.CompletionTokens != 8 || usage.CachedTokens != 4 {
		t.Errorf("usage = %#v", out[1])
	}

	stats := tracker.GetProviderStatistics("anthropic")
	if stats.TotalRequests != 1 || stats.SuccessfulRequests != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalTokensProcessed != 20 {
		t.Errorf("tokens = %d, want 20", stats.TotalTokensProcessed)
	}
}

func TestChatClientSendRetriesThenSucceeds(t *testing.T) {
	var calls int
	client, tracker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(anthropicTextResponse))
	})

	_, err := client.Send(context.Background(), userTurn("Hi"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if stats := tracker.GetProviderStatistics("anthropic"); stats.TotalRequests != 1 {
		t.Errorf("want one logical record, got %+v", stats)
	}
}

func TestChatClientSendAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := client.Send(context.Background(), userTurn("Hi"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	var herr *transport.HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 HTTPError", err)
	}
	if !lmgo.IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false", err)
	}
}

func TestChatClientSendValidation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	})

	if _, err := client.Send(context.Background(), nil, &lmgo.ChatOptions{Model: "m"}); !errors.Is(err, lmgo.ErrEmptyConversation) {
		t.Errorf("empty conversation: %v", err)
	}
	if _, err := client.Send(context.Background(), userTurn("hi"), nil); !errors.Is(err, lmgo.ErrInvalidRequest) {
		t.Errorf("nil options: %v", err)
	}
	if _, err := client.Send(context.Background(), userTurn("hi"), &lmgo.ChatOptions{}); !errors.Is(err, lmgo.ErrInvalidModel) {
		t.Errorf("missing model: %v", err)
	}
}

func TestChatClientSendStreaming(t *testing.T) {
	client, tracker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("accept header = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(anthropicStreamBody))
	})

	ch, err := client.SendStreaming(context.Background(), userTurn("Hi"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}

	var msgs []lmgo.Message
	for item := range ch {
		if item.Err != nil {
			t.Fatalf("stream error: %v", item.Err)
		}
		msgs = append(msgs, item.Message)
	}

	// two text updates, final text, usage
	if len(msgs) != 4 {
		t.Fatalf("messages = %d: %#v", len(msgs), msgs)
	}
	final, ok := msgs[2].(lmgo.TextMessage)
	if !ok || final.Text != "Hello world" {
		t.Errorf("final = %#v", msgs[2])
	}
	usage, ok := msgs[3].(lmgo.UsageMessage)
	if !ok || usage.PromptTokens != 12 || usage.CompletionTokens != 2 {
		t.Errorf("usage = %#v", msgs[3])
	}

	stats := tracker.GetProviderStatistics("anthropic")
	if stats.TotalRequests != 1 || stats.SuccessfulRequests != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestChatClientSendCorrelatesServerTools(t *testing.T) {
	// The provider echoed a stale id on the result; the turn still bundles it
	// with the one unanswered web_search call and replays under the call's id.
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_ws",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [
				{"type": "server_tool_use", "id": "srvtoolu_1", "name": "web_search", "input": {"query": "go"}},
				{"type": "web_search_tool_result", "tool_use_id": "srvtoolu_stale", "content": [{"type": "web_search_result", "url": "https://go.dev", "title": "Go"}]},
				{"type": "text", "text": "Go is a language."}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 6}
		}`))
	})

	out, err := client.Send(context.Background(), userTurn("search for go"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var agg *lmgo.ToolsCallAggregateMessage
	for _, m := range out {
		if a, ok := m.(lmgo.ToolsCallAggregateMessage); ok {
			agg = &a
			break
		}
	}
	if agg == nil {
		t.Fatalf("no aggregate in output: %#v", out)
	}
	if agg.Call == nil || agg.Call.ID != "srvtoolu_1" {
		t.Fatalf("aggregate call = %#v", agg.Call)
	}
	if len(agg.Results) != 1 || agg.Results[0].ID != "srvtoolu_1" {
		t.Errorf("result not bundled under the call's id: %#v", agg.Results)
	}
}

const anthropicEquivalenceResponse = `{
	"id": "msg_eq",
	"type": "message",
	"role": "assistant",
	"model": "claude-haiku-4-5-20251001",
	"content": [
		{"type": "thinking", "thinking": "Consider the sum.", "signature": "sig_1"},
		{"type": "text", "text": "The answer is 4."},
		{"type": "tool_use", "id": "toolu_eq", "name": "calculator", "input": {"expr":"2+2"}}
	],
	"stop_reason": "tool_use",
	"usage": {"input_tokens": 12, "output_tokens": 8, "cache_read_input_tokens": 4}
}`

const anthropicEquivalenceStream = "event: message_start\n" +
	`data: {"type":"message_start","message":{"id":"msg_eq","model":"claude-haiku-4-5-20251001","role":"assistant","usage":{"input_tokens":12,"output_tokens":0,"cache_read_input_tokens":4}}}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Consider the sum."}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig_1"}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":0}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"The answer is 4."}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":1}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_eq","name":"calculator","input":{}}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"expr\":\"2+2\"}"}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":2}` + "\n\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}` + "\n\n" +
	"event: message_stop\n" +
	`data: {"type":"message_stop"}` + "\n\n"

func TestChatClientStreamingMatchesNonStreaming(t *testing.T) {
	// Identical content over both transports ends in identical finalized
	// messages, byte for byte in the tool arguments included.
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "text/event-stream" {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte(anthropicEquivalenceStream))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(anthropicEquivalenceResponse))
	})
	opts := &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"}

	direct, err := client.Send(context.Background(), userTurn("2+2?"), opts)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	ch, err := client.SendStreaming(context.Background(), userTurn("2+2?"), opts)
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	var streamed []lmgo.Message
	for item := range ch {
		if item.Err != nil {
			t.Fatalf("stream error: %v", item.Err)
		}
		if lmgo.IsUpdate(item.Message) {
			continue
		}
		streamed = append(streamed, item.Message)
	}

	if !reflect.DeepEqual(direct, streamed) {
		t.Errorf("outputs diverge:\n direct:   %#v\n streamed: %#v", direct, streamed)
	}
}

func TestChatClientSendStreamingTruncated(t *testing.T) {
	client, tracker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// stream cut off before message_stop
		w.Write([]byte("event: message_start\n" +
			`data: {"type":"message_start","message":{"id":"msg_01","model":"m","role":"assistant","usage":{"input_tokens":1,"output_tokens":0}}}` + "\n\n"))
	})

	ch, err := client.SendStreaming(context.Background(), userTurn("Hi"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}

	var streamErr error
	for item := range ch {
		if item.Err != nil {
			streamErr = item.Err
		}
	}
	if streamErr == nil {
		t.Fatal("expected an error for a truncated stream")
	}
	if stats := tracker.GetProviderStatistics("anthropic"); stats.FailedRequests != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestChatClientSendStreamingCancel(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Leave a text block open mid-stream, then stall.
		w.Write([]byte("event: message_start\n" +
			`data: {"type":"message_start","message":{"id":"msg_01","model":"m","role":"assistant","usage":{"input_tokens":1,"output_tokens":0}}}` + "\n\n" +
			"event: content_block_start\n" +
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
			"event: content_block_delta\n" +
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}` + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := client.SendStreaming(ctx, userTurn("Hi"), &lmgo.ChatOptions{Model: "claude-haiku-4-5-20251001"})
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	cancel()

	var finalized []lmgo.Message
	done := make(chan struct{})
	go func() {
		defer close(done)
		for item := range ch {
			if item.Message != nil && !lmgo.IsUpdate(item.Message) {
				finalized = append(finalized, item.Message)
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancellation")
	}
	if len(finalized) != 0 {
		t.Errorf("cancelled turn delivered finalized messages: %#v", finalized)
	}
}
