package services

import (
	"context"
	"sync"

	"aicouncil/pkg/counciltypes"
)

// fakeClient records requests and answers from a canned completion or error.
type fakeClient struct {
	mu         sync.Mutex
	requests   []counciltypes.CompletionRequest
	completion counciltypes.Completion
	err        error
	block      bool
	panicWith  any
}

func (f *fakeClient) Complete(ctx context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.block {
		<-ctx.Done()
		return counciltypes.Completion{}, ctx.Err()
	}
	if f.err != nil {
		return counciltypes.Completion{}, f.err
	}
	return f.completion, nil
}

func (f *fakeClient) lastRequest() counciltypes.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}
