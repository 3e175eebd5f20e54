package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"gateway/services/gateway-svc/internal/registry"
)

func TestRenderURL_InterpolatesChainAndEnv(t *testing.T) {
	os.Setenv("TEST_PROVIDER_KEY", "secret123")
	defer os.Unsetenv("TEST_PROVIDER_KEY")

	got := RenderURL("https://rpc.example.com/{chainId}?key=${TEST_PROVIDER_KEY}", "eip155:1")
	want := "https://rpc.example.com/eip155:1?key=secret123"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestForward_SuccessRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := &registry.Provider{ID: "test", URLTemplate: srv.URL, TimeoutMS: 1000}
	c := NewClient(8)

	res, err := c.Forward(context.Background(), p, "eip155:1", []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HTTPStatus != 200 {
		t.Fatalf("expected 200, got %d", res.HTTPStatus)
	}
	if res.RPC == nil || string(res.RPC.Result) != `"0x1"` {
		t.Fatalf("unexpected RPC result: %+v", res.RPC)
	}
}

func TestForward_TransportErrorHasZeroStatus(t *testing.T) {
	p := &registry.Provider{ID: "test", URLTemplate: "http://127.0.0.1:1", TimeoutMS: 100}
	c := NewClient(8)

	res, err := c.Forward(context.Background(), p, "eip155:1", []byte(`{}`))
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if res.HTTPStatus != 0 {
		t.Fatalf("expected zero status on transport error, got %d", res.HTTPStatus)
	}
}
