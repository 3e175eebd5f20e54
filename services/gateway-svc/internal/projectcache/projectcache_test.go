package projectcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"gateway/pkg/apperror"
	"gateway/pkg/cache"
	"gateway/services/gateway-svc/internal/store"
)

type fakeFetcher struct {
	calls    int
	projects map[string]*store.Project
}

func (f *fakeFetcher) GetProject(_ context.Context, id string) (*store.Project, error) {
	f.calls++
	if p, ok := f.projects[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type unavailableFetcher struct{}

func (unavailableFetcher) GetProject(_ context.Context, _ string) (*store.Project, error) {
	return nil, errors.New("connection refused")
}

func newBackend() cache.Cache {
	return cache.NewMemoryCache(&cache.Options{DefaultTTL: time.Minute, MaxEntries: 100})
}

func TestFetch_PositiveHitAvoidsUpstream(t *testing.T) {
	fetcher := &fakeFetcher{projects: map[string]*store.Project{"P": {ID: "P", Status: store.ProjectStatusValid}}}
	c := New(newBackend(), fetcher, time.Minute, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := c.Fetch(ctx, "P")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ID != "P" {
			t.Fatalf("unexpected project: %+v", p)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", fetcher.calls)
	}
}

func TestFetch_NotFoundIsNegativelyCached(t *testing.T) {
	fetcher := &fakeFetcher{projects: map[string]*store.Project{}}
	c := New(newBackend(), fetcher, time.Minute, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(ctx, "ghost")
		if apperror.CodeOf(err) != apperror.CodeUnknownProject {
			t.Fatalf("expected unknown project error, got %v", err)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected negative result to be cached, got %d upstream calls", fetcher.calls)
	}
}

func TestFetch_NegativeTTLExpires(t *testing.T) {
	fetcher := &fakeFetcher{projects: map[string]*store.Project{}}
	c := New(newBackend(), fetcher, time.Minute, 10*time.Millisecond)
	ctx := context.Background()

	_, _ = c.Fetch(ctx, "ghost")
	time.Sleep(30 * time.Millisecond)
	_, _ = c.Fetch(ctx, "ghost")

	if fetcher.calls != 2 {
		t.Fatalf("expected negative cache to expire and retry upstream, got %d calls", fetcher.calls)
	}
}

func TestFetch_UpstreamUnavailableIsDistinctFromNotFound(t *testing.T) {
	c := New(newBackend(), unavailableFetcher{}, time.Minute, time.Minute)
	_, err := c.Fetch(context.Background(), "P")
	if err == nil {
		t.Fatalf("expected error")
	}
	if apperror.CodeOf(err) == apperror.CodeUnknownProject {
		t.Fatalf("upstream failure must not be reported as not_found")
	}
	if apperror.CodeOf(err) != apperror.CodeStoreUnavailable {
		t.Fatalf("expected store-unavailable code, got %s", apperror.CodeOf(err))
	}
}
