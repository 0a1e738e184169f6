package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ragbot/internal/indexer"
)

type blockingBuilder struct {
	release chan struct{}
	calls   chan struct{}
	err     error
}

func (b *blockingBuilder) Rebuild(ctx context.Context) (*indexer.BuildStats, error) {
	b.calls <- struct{}{}
	<-b.release
	if b.err != nil {
		return nil, b.err
	}
	return &indexer.BuildStats{ChunksEmbedded: 3}, nil
}

func TestIndexHandler_ServeHTTP(t *testing.T) {
	builder := &blockingBuilder{release: make(chan struct{}), calls: make(chan struct{}, 4)}
	handler := NewIndexHandler(builder)
	finished := make(chan struct{}, 4)
	handler.done = func() { finished <- struct{}{} }

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/index", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := post()
	if w.Code != http.StatusAccepted {
		t.Fatalf("ServeHTTP() status = %v, want %v", w.Code, http.StatusAccepted)
	}
	var resp IndexResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("ServeHTTP() invalid JSON: %v", err)
	}
	if resp.Status != "accepted" {
		t.Errorf("ServeHTTP() status field = %q, want accepted", resp.Status)
	}

	select {
	case <-builder.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild never started")
	}

	if w := post(); w.Code != http.StatusConflict {
		t.Errorf("second ServeHTTP() status = %v, want %v", w.Code, http.StatusConflict)
	}

	close(builder.release)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild never finished")
	}

	// A failed rebuild also frees the slot.
	builder.err = errors.New("embedding backend down")
	if w := post(); w.Code != http.StatusAccepted {
		t.Errorf("ServeHTTP() after completion status = %v, want %v", w.Code, http.StatusAccepted)
	}
	<-builder.calls
	<-finished
	if w := post(); w.Code != http.StatusAccepted {
		t.Errorf("ServeHTTP() after failure status = %v, want %v", w.Code, http.StatusAccepted)
	}
	<-builder.calls
	<-finished
}

func TestIndexHandler_MethodNotAllowed(t *testing.T) {
	handler := NewIndexHandler(&blockingBuilder{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/index", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("ServeHTTP() status = %v, want %v", w.Code, http.StatusMethodNotAllowed)
	}
}
