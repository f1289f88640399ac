package serve

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// LiveReloadPath is the SSE endpoint browsers subscribe to.
const LiveReloadPath = "/livereload"

// LiveReloadScriptPath serves LiveReloadScript.
const LiveReloadScriptPath = "/livereload.js"

// LiveReloadTag is injected at the bottom of every page while serving.
const LiveReloadTag = `<script src="` + LiveReloadScriptPath + `"></script>`

// LiveReloadScript reloads the page whenever the hub announces a hash
// different from the one seen on connect.
const LiveReloadScript = `(() => {
  if (window.__MARKBIND_LR__) return;
  window.__MARKBIND_LR__ = true;
  function connect() {
    const es = new EventSource('` + LiveReloadPath + `');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`

const heartbeat = 30 * time.Second

// Hub fans rebuild hashes out to connected browsers over server-sent events.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	nextID  int
	clients map[int]*client
	last    string
	closed  bool
}

type client struct {
	ch   chan string
	done chan struct{}
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: map[int]*client{}}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// LastHash returns the most recently broadcast hash.
func (h *Hub) LastHash() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// ServeHTTP streams hashes until the client disconnects or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "live reload shutting down", http.StatusServiceUnavailable)
		return
	}
	id := h.nextID
	h.nextID++
	c := &client{ch: make(chan string, 8), done: make(chan struct{})}
	h.clients[id] = c
	current := h.last
	h.mu.Unlock()
	defer h.remove(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			h.log.Debug("Live reload write failed", "error", err)
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(": connected\n\n" + event(current)) {
		return
	}

	ping := time.NewTicker(heartbeat)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-ping.C:
			if !send(": ping\n\n") {
				return
			}
		case hash := <-c.ch:
			if !send(event(hash)) {
				return
			}
		}
	}
}

func event(hash string) string {
	return `data: {"hash":"` + hash + `"}` + "\n\n"
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Broadcast sends hash to every client. Empty and repeated hashes are
// dropped; so are clients that cannot keep up.
func (h *Hub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.last {
		h.mu.Unlock()
		return
	}
	h.last = hash
	var slow []int
	for id, c := range h.clients {
		select {
		case c.ch <- hash:
		default:
			slow = append(slow, id)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, id := range slow {
		h.remove(id)
	}
	h.log.Debug("Live reload broadcast", "hash", hash, "clients", n, "dropped", len(slow))
}

// Shutdown disconnects every client and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.done)
	}
}

func serveScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(LiveReloadScript))
}
