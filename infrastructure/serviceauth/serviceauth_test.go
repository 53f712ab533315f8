package serviceauth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	// Test WithServiceID and GetServiceID
	ctx = WithServiceID(ctx, "test-service")
	if got := GetServiceID(ctx); got != "test-service" {
		t.Errorf("GetServiceID() = %q, want %q", got, "test-service")
	}

	// Test WithUserID and GetUserID
	ctx = WithUserID(ctx, "user-123")
	if got := GetUserID(ctx); got != "user-123" {
		t.Errorf("GetUserID() = %q, want %q", got, "user-123")
	}

	// Test empty context
	emptyCtx := context.Background()
	if got := GetServiceID(emptyCtx); got != "" {
		t.Errorf("GetServiceID(empty) = %q, want empty", got)
	}
	if got := GetUserID(emptyCtx); got != "" {
		t.Errorf("GetUserID(empty) = %q, want empty", got)
	}
}

func testSecret() []byte {
	return []byte("test-shared-secret")
}

func TestServiceTokenGenerator(t *testing.T) {
	secret := testSecret()

	t.Run("default expiry", func(t *testing.T) {
		gen := NewServiceTokenGenerator(secret, "coordinator", 0)
		if gen.expiry != DefaultServiceTokenExpiry {
			t.Errorf("expiry = %v, want %v", gen.expiry, DefaultServiceTokenExpiry)
		}
	})

	t.Run("custom expiry", func(t *testing.T) {
		customExpiry := 30 * time.Minute
		gen := NewServiceTokenGenerator(secret, "coordinator", customExpiry)
		if gen.expiry != customExpiry {
			t.Errorf("expiry = %v, want %v", gen.expiry, customExpiry)
		}
	})

	t.Run("generate token", func(t *testing.T) {
		gen := NewServiceTokenGenerator(secret, "coordinator", time.Hour)
		token, err := gen.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if token == "" {
			t.Error("GenerateToken() returned empty token")
		}
	})
}

func TestVerifyToken(t *testing.T) {
	secret := testSecret()
	gen := NewServiceTokenGenerator(secret, "coordinator", time.Hour)

	t.Run("valid token", func(t *testing.T) {
		token, err := gen.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		claims, err := VerifyToken(token, secret)
		if err != nil {
			t.Fatalf("VerifyToken() error = %v", err)
		}
		if claims.ServiceID != "coordinator" {
			t.Errorf("ServiceID = %q, want %q", claims.ServiceID, "coordinator")
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token, err := gen.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if _, err := VerifyToken(token, []byte("wrong-secret")); err == nil {
			t.Error("expected error verifying token with wrong secret")
		}
	})

	t.Run("malformed token rejected", func(t *testing.T) {
		if _, err := VerifyToken("not-a-jwt", secret); err == nil {
			t.Error("expected error for malformed token")
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		expiredGen := NewServiceTokenGenerator(secret, "coordinator", -time.Minute)
		token, err := expiredGen.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if _, err := VerifyToken(token, secret); err == nil {
			t.Error("expected error for expired token")
		}
	})
}

func TestServiceTokenRoundTripper(t *testing.T) {
	secret := testSecret()
	gen := NewServiceTokenGenerator(secret, "coordinator", time.Hour)

	t.Run("nil generator returns base", func(t *testing.T) {
		rt := NewServiceTokenRoundTripper(http.DefaultTransport, nil)
		if rt != http.DefaultTransport {
			t.Error("expected base transport when generator is nil")
		}
	})

	t.Run("nil base uses default", func(t *testing.T) {
		rt := NewServiceTokenRoundTripper(nil, gen)
		if rt == nil {
			t.Error("expected non-nil round tripper")
		}
	})

	t.Run("injects token header", func(t *testing.T) {
		var capturedHeader string

		base := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			capturedHeader = r.Header.Get(ServiceTokenHeader)
			return &http.Response{
				StatusCode: http.StatusOK,
				Status:     http.StatusText(http.StatusOK),
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("")),
				Request:    r,
			}, nil
		})
		rt := NewServiceTokenRoundTripper(base, gen)
		client := &http.Client{Transport: rt}

		req, _ := http.NewRequest("GET", "http://example.com", nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if capturedHeader == "" {
			t.Error("ServiceTokenHeader not set")
		}
	})

	t.Run("propagates user ID", func(t *testing.T) {
		var capturedUserID string

		base := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			capturedUserID = r.Header.Get(UserIDHeader)
			return &http.Response{
				StatusCode: http.StatusOK,
				Status:     http.StatusText(http.StatusOK),
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("")),
				Request:    r,
			}, nil
		})
		rt := NewServiceTokenRoundTripper(base, gen)
		client := &http.Client{Transport: rt}

		ctx := WithUserID(context.Background(), "user-456")
		req, _ := http.NewRequestWithContext(ctx, "GET", "http://example.com", nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if capturedUserID != "user-456" {
			t.Errorf("UserIDHeader = %q, want %q", capturedUserID, "user-456")
		}
	})
}

func TestConstants(t *testing.T) {
	if ServiceTokenHeader != "X-Service-Token" {
		t.Errorf("ServiceTokenHeader = %q, want %q", ServiceTokenHeader, "X-Service-Token")
	}
	if ServiceIDHeader != "X-Service-ID" {
		t.Errorf("ServiceIDHeader = %q, want %q", ServiceIDHeader, "X-Service-ID")
	}
	if UserIDHeader != "X-User-ID" {
		t.Errorf("UserIDHeader = %q, want %q", UserIDHeader, "X-User-ID")
	}
	if DefaultServiceTokenExpiry != time.Hour {
		t.Errorf("DefaultServiceTokenExpiry = %v, want %v", DefaultServiceTokenExpiry, time.Hour)
	}
}
