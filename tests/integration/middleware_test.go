//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
)

func TestRequestID_EchoedOnAPI(t *testing.T) {
	const id = "cafe-req-0001"

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+"/api/menu", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("X-Request-ID", id)

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("X-Request-ID"); got != id {
		t.Errorf("X-Request-ID: got %q, want %q", got, id)
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doGet(t, "/api/menu")
	defer resp.Body.Close()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "10000" {
		t.Errorf("X-RateLimit-Limit: got %q, want %q", limit, "10000")
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		t.Error("X-RateLimit-Remaining header not present")
	}
}

func TestUnknownRoute(t *testing.T) {
	for _, path := range []string{"/api/nope", "/api/orders/abc/refund"} {
		resp := doGet(t, path)
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 404 or 401, got %d", path, resp.StatusCode)
		}
	}
}
