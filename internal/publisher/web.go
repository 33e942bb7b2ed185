package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/wenqing/arxiv-digest/internal/summarizer"
)

// WebPublisher serves the latest digest as an HTML page over HTTP, with a
// JSON view of the same data under /api/digest.
type WebPublisher struct {
	addr   string
	server *http.Server
	mu     sync.RWMutex
	latest *summarizer.Digest
}

func NewWebPublisher(addr string) *WebPublisher {
	wp := &WebPublisher{addr: addr}

	r := mux.NewRouter()
	r.HandleFunc("/", wp.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/digest", wp.handleDigest).Methods(http.MethodGet)

	wp.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return wp
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		log.Printf("web: publisher listening on %s", wp.addr)
		if err := wp.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("web: server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.server.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, digest *summarizer.Digest) error {
	wp.mu.Lock()
	wp.latest = digest
	wp.mu.Unlock()
	log.Printf("web: updated with digest for %s (%d papers)", digest.Category, len(digest.Papers))
	return nil
}

func (wp *WebPublisher) handleIndex(w http.ResponseWriter, r *http.Request) {
	wp.mu.RLock()
	digest := wp.latest
	wp.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if digest == nil {
		fmt.Fprint(w, `<html><body><h2>arXiv 每日摘要</h2><p>暂无摘要，请稍后再来。</p></body></html>`)
		return
	}

	// cid links only resolve inside an email, so figures stay off here.
	fmt.Fprint(w, buildHTMLBody(digest, false))
}

func (wp *WebPublisher) handleDigest(w http.ResponseWriter, r *http.Request) {
	wp.mu.RLock()
	digest := wp.latest
	wp.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if digest == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no digest yet"})
		return
	}

	if err := json.NewEncoder(w).Encode(digest); err != nil {
		log.Printf("web: failed to encode digest: %v", err)
	}
}
