package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretManager struct {
	responses map[string]string
	err       error
	calls     int
}

func (s *stubSecretManager) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.responses[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubSecretManager) Close() error { return nil }

func TestFetcherResolvesRemoteSecret(t *testing.T) {
	client := &stubSecretManager{responses: map[string]string{
		"projects/shop-test/secrets/stripe-key/versions/latest": "sk_test_123",
	}}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("shop-test"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_test_123" {
		t.Fatalf("unexpected secret value %q", value)
	}
}

func TestFetcherCachesResolvedValues(t *testing.T) {
	client := &stubSecretManager{responses: map[string]string{
		"projects/shop-test/secrets/stripe-key/versions/latest": "sk_test_123",
	}}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("shop-test"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 3; i++ {
		if _, err := fetcher.Resolve(context.Background(), "secret://stripe-key"); err != nil {
			t.Fatalf("Resolve attempt %d returned error: %v", i, err)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected one remote call, got %d", client.calls)
	}

	fetcher.Invalidate("secret://stripe-key")
	if _, err := fetcher.Resolve(context.Background(), "secret://stripe-key"); err != nil {
		t.Fatalf("Resolve after invalidate returned error: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected invalidate to force a refetch, got %d calls", client.calls)
	}
}

func TestFetcherFallsBackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "secrets.local")
	if err := os.WriteFile(fallback, []byte("secret://stripe-key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &stubSecretManager{err: status.Error(codes.PermissionDenied, "denied")}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("shop-test"),
		WithFallbackFile(fallback),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_local" {
		t.Fatalf("expected fallback value, got %q", value)
	}
}

func TestFetcherRejectsUnknownScheme(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretManager{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(context.Background(), "vault://stripe-key"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestFetcherReportsMissingFallback(t *testing.T) {
	client := &stubSecretManager{err: status.Error(codes.Unavailable, "down")}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("shop-test"),
		WithFallbackFile(filepath.Join(t.TempDir(), "missing")),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(context.Background(), "secret://stripe-key"); err == nil {
		t.Fatal("expected error when no fallback value exists")
	}
}
