package model

import (
	"context"
	"sync"
	"time"
)

type fakeBackend struct {
	mu sync.Mutex

	pingErr   error
	listErr   error
	installed []string
	pullErr   error
	pullDelay time.Duration
	pulls     int
	pings     int

	generate func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	requests []*GenerateRequest
}

func newFakeBackend(installed ...string) *fakeBackend {
	return &fakeBackend{installed: installed}
}

func (f *fakeBackend) Endpoint() string { return "fake://backend" }

func (f *fakeBackend) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.installed...), nil
}

func (f *fakeBackend) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gen := f.generate
	f.mu.Unlock()

	if gen != nil {
		return gen(ctx, req)
	}
	return &GenerateResponse{Text: "reply from " + req.Model, Model: req.Model, TokensUsed: 7}, nil
}

func (f *fakeBackend) Pull(ctx context.Context, model string) error {
	f.mu.Lock()
	f.pulls++
	delay, err := f.pullDelay, f.pullErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.installed = append(f.installed, model)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func (f *fakeBackend) lastRequest() *GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}
