package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// session-echo is a development stand-in for tmux when running with
// TARGET_MODE=http. Sessions are created with PUT, probed with HEAD and
// receive messages with POST, matching what the delivery queue expects
// from a session receiver.

type message struct {
	Timestamp string `json:"timestamp"`
	Body      string `json:"body"`
}

type session struct {
	Name     string    `json:"name"`
	Created  string    `json:"created"`
	Received int64     `json:"received"`
	Messages []message `json:"messages"`
}

var (
	mu        sync.Mutex
	sessions  = make(map[string]*session)
	maxStored = 50
)

func main() {
	addr := ":9090"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	// Pre-create sessions named on the command line.
	for _, name := range os.Args[1:] {
		sessions[name] = &session{Name: name, Created: time.Now().UTC().Format(time.RFC3339)}
	}

	http.HandleFunc("/sessions/", sessionHandler)
	http.HandleFunc("/sessions", listHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	log.Printf("session-echo listening on %s (%d sessions)", addr, len(sessions))
	log.Fatal(http.ListenAndServe(addr, nil))
}

func sessionHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		mu.Lock()
		if _, ok := sessions[name]; !ok {
			sessions[name] = &session{Name: name, Created: time.Now().UTC().Format(time.RFC3339)}
		}
		mu.Unlock()
		log.Printf("session created: %s", name)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"name":%q}`, name)

	case http.MethodHead:
		mu.Lock()
		_, ok := sessions[name]
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		defer r.Body.Close()

		mu.Lock()
		s, ok := sessions[name]
		if !ok {
			mu.Unlock()
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, "no such session")
			return
		}
		s.Received++
		s.Messages = append(s.Messages, message{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Body:      string(body),
		})
		if len(s.Messages) > maxStored {
			s.Messages = s.Messages[len(s.Messages)-maxStored:]
		}
		current := s.Received
		mu.Unlock()

		log.Printf("session %s received #%d: %s", name, current, string(body))
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"received":%d}`, current)

	case http.MethodDelete:
		mu.Lock()
		delete(sessions, name)
		mu.Unlock()
		log.Printf("session removed: %s", name)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		mu.Lock()
		s, ok := sessions[name]
		if !ok {
			mu.Unlock()
			http.NotFound(w, r)
			return
		}
		out := *s
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	mu.Lock()
	names := make([]string, 0, len(sessions))
	for name := range sessions {
		names = append(names, name)
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}
