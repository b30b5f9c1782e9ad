package filter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []models.FilterCriteria
	gates map[string]chan struct{} // keyed by SearchText, blocks FetchLogs
	err   error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{gates: make(map[string]chan struct{})}
}

func (f *fakeFetcher) FetchLogs(ctx context.Context, criteria models.FilterCriteria, limit, offset int) (models.LogPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, criteria)
	gate := f.gates[criteria.SearchText]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.LogPage{}, ctx.Err()
		}
	}
	if err != nil {
		return models.LogPage{}, err
	}
	return models.LogPage{Total: 1}, nil
}

func (f *fakeFetcher) FetchStats(ctx context.Context, criteria models.FilterCriteria, bucketMinutes int) (models.StatsReport, error) {
	return models.StatsReport{BucketMinutes: bucketMinutes}, nil
}

func (f *fakeFetcher) logCalls() []models.FilterCriteria {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FilterCriteria, len(f.calls))
	copy(out, f.calls)
	return out
}

func waitSeed(t *testing.T, ch <-chan Seed) Seed {
	t.Helper()
	select {
	case seed := <-ch:
		return seed
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a seed")
		return Seed{}
	}
}

func TestRapidCriteriaChangesCoalesceIntoOneFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	seeds := make(chan Seed, 4)

	e := NewEngine(Config{Debounce: 50 * time.Millisecond}, fetcher,
		func(s Seed) { seeds <- s }, nil)
	defer e.Close()

	for _, q := range []string{"a", "b", "c", "d", "final"} {
		e.SetCriteria(models.FilterCriteria{SearchText: q})
	}

	seed := waitSeed(t, seeds)
	if seed.Criteria.SearchText != "final" {
		t.Fatalf("expected last criteria to win, got %q", seed.Criteria.SearchText)
	}

	time.Sleep(150 * time.Millisecond)
	calls := fetcher.logCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 log fetch, got %d: %v", len(calls), calls)
	}
	select {
	case extra := <-seeds:
		t.Fatalf("unexpected extra seed: %+v", extra)
	default:
	}
}

func TestSupersededResponseIsDiscarded(t *testing.T) {
	fetcher := newFakeFetcher()
	gate := make(chan struct{})
	fetcher.gates["slow"] = gate
	seeds := make(chan Seed, 4)

	e := NewEngine(Config{Debounce: 20 * time.Millisecond}, fetcher,
		func(s Seed) { seeds <- s }, nil)
	defer e.Close()

	e.SetCriteria(models.FilterCriteria{SearchText: "slow"})
	time.Sleep(60 * time.Millisecond) // let the slow request launch

	e.SetCriteria(models.FilterCriteria{SearchText: "fast"})
	seed := waitSeed(t, seeds)
	if seed.Criteria.SearchText != "fast" {
		t.Fatalf("expected superseding criteria to seed, got %q", seed.Criteria.SearchText)
	}

	close(gate)
	time.Sleep(100 * time.Millisecond)
	select {
	case stale := <-seeds:
		t.Fatalf("stale response must be discarded, got %+v", stale)
	default:
	}
}

func TestRefreshBypassesDebounce(t *testing.T) {
	fetcher := newFakeFetcher()
	seeds := make(chan Seed, 4)

	e := NewEngine(Config{Debounce: time.Hour}, fetcher,
		func(s Seed) { seeds <- s }, nil)
	defer e.Close()

	e.Refresh()
	waitSeed(t, seeds)
}

func TestFetchErrorSurfacesWhenCurrent(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.err = errors.New("server unavailable")
	errs := make(chan error, 4)

	e := NewEngine(Config{Debounce: 20 * time.Millisecond}, fetcher,
		func(Seed) {}, func(err error) { errs <- err })
	defer e.Close()

	e.Refresh()
	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected a non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the fetch error")
	}
}

func TestCloseDropsLateResponses(t *testing.T) {
	fetcher := newFakeFetcher()
	gate := make(chan struct{})
	fetcher.gates["slow"] = gate
	seeds := make(chan Seed, 4)

	e := NewEngine(Config{Debounce: 20 * time.Millisecond}, fetcher,
		func(s Seed) { seeds <- s }, nil)

	e.SetCriteria(models.FilterCriteria{SearchText: "slow"})
	time.Sleep(60 * time.Millisecond)
	e.Close()
	close(gate)

	time.Sleep(100 * time.Millisecond)
	select {
	case seed := <-seeds:
		t.Fatalf("no seed expected after close, got %+v", seed)
	default:
	}
}
