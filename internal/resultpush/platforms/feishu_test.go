package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFeishuAdapterPayloadAndHeaders(t *testing.T) {
	var got map[string]any
	var sig, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Lark-Signature")
		auth = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewFeishuAdapter(NewHTTPClient(time.Second))
	err := adapter.Send(context.Background(), srv.URL, "sig:s1;bearer:b1", Message{
		Title:       "Race finished",
		Description: "alice won",
		Fields:      []Field{{Name: "#1 alice", Value: "4.20s"}},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sig != "s1" || auth != "Bearer b1" {
		t.Fatalf("unexpected headers: sig=%q auth=%q", sig, auth)
	}
	if got["msg_type"] != "interactive" {
		t.Fatalf("unexpected msg_type: %v", got["msg_type"])
	}
	card := got["card"].(map[string]any)
	elements := card["elements"].([]any)
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}
	if elements[1].(map[string]any)["text"] != "**#1 alice**: 4.20s" {
		t.Fatalf("unexpected field element: %#v", elements[1])
	}
}

func TestParseFeishuSecret(t *testing.T) {
	cases := []struct {
		in, sig, bearer string
	}{
		{"", "", ""},
		{"plain", "plain", ""},
		{"sig:a;bearer:b", "a", "b"},
		{"bearer:only", "", "only"},
	}
	for _, c := range cases {
		sig, bearer := parseFeishuSecret(c.in)
		if sig != c.sig || bearer != c.bearer {
			t.Fatalf("parseFeishuSecret(%q) = %q, %q", c.in, sig, bearer)
		}
	}
}
