package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/event-checkin/internal/storage"
	"github.com/spec-kit/event-checkin/internal/worker"
)

type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Render(payload string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("png:" + payload), nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Upload(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.objects[bucket+"/"+key] = data
	return storage.PublicURL("https://cdn.example.com", bucket, key), nil
}

type delivery struct {
	recipient string
	text      string
}

type fakeChannel struct {
	mu         sync.Mutex
	deliveries []delivery
	outcome    worker.Outcome
	err        error
}

func (c *fakeChannel) Deliver(_ context.Context, recipient, text string) (worker.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.deliveries = append(c.deliveries, delivery{recipient: recipient, text: text})
	if c.outcome == "" {
		return worker.OutcomeDelivered, nil
	}
	return c.outcome, nil
}

func (c *fakeChannel) sent() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery(nil), c.deliveries...)
}

type fakeAttempts struct {
	mu       sync.Mutex
	failures map[string]int64
	locked   map[string]time.Duration
	err      error
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{failures: map[string]int64{}, locked: map[string]time.Duration{}}
}

func (f *fakeAttempts) IsLocked(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.locked[email]
	return ok, nil
}

func (f *fakeAttempts) RecordFailure(_ context.Context, email string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.failures[email]++
	return f.failures[email], nil
}

func (f *fakeAttempts) Lock(_ context.Context, email string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked[email] = ttl
	return nil
}

func (f *fakeAttempts) Reset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, email)
	delete(f.locked, email)
	return nil
}

var errBoom = errors.New("boom")
