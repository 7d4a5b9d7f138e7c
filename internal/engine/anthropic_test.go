package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

func anthropicReply(text string) map[string]any {
	return map[string]any{
		"id":   "msg_test",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-sonnet-4-5",
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func TestAnthropicEngine_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicReply("```json\n{\"commonName\":\"Monstera\"}\n```"))
	}))
	defer srv.Close()

	e := NewAnthropicEngine("test-key", option.WithBaseURL(srv.URL))
	out, err := e.Chat(context.Background(), "claude-sonnet-4-5", []Message{
		{Role: "system", Content: "You are a botanist."},
		{Role: "user", Content: "What plant is this?", Images: []Image{{MediaType: "image/png", Data: "iVBORw0KGgo="}}},
	}, &Schema{Type: "object", Properties: map[string]*Schema{"commonName": {Type: "string"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"commonName":"Monstera"}` {
		t.Errorf("out = %q", out)
	}

	system, _ := body["system"].([]any)
	if len(system) != 2 {
		t.Fatalf("system blocks = %v", body["system"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", body["messages"])
	}
	content, _ := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content blocks = %v", content)
	}
	img, _ := content[0].(map[string]any)
	if img["type"] != "image" {
		t.Errorf("first block type = %v, want image", img["type"])
	}
}

func TestAnthropicEngine_ChatStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	e := NewAnthropicEngine("bad-key", option.WithBaseURL(srv.URL))
	_, err := e.Chat(context.Background(), "claude-sonnet-4-5", []Message{{Role: "user", Content: "hi"}}, nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.HTTPStatus() != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", se.HTTPStatus())
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
