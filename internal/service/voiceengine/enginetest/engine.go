// Package enginetest provides a scripted in-process voice engine: a REST
// endpoint that creates calls and a WebSocket endpoint that plays a script of
// frames to the client while recording what the client streams.
package enginetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type stepKind int

const (
	stepBinary stepKind = iota
	stepText
	stepWaitInput
	stepDrop
	stepClose
	stepPause
)

// Step is one action the engine takes on a session socket.
type Step struct {
	kind  stepKind
	data  []byte
	pause time.Duration
}

// Audio sends a binary frame.
func Audio(p []byte) Step { return Step{kind: stepBinary, data: p} }

// Text sends a raw text frame.
func Text(s string) Step { return Step{kind: stepText, data: []byte(s)} }

// Transcript sends a transcript control frame.
func Transcript(role, text string) Step {
	b, _ := json.Marshal(map[string]any{"type": "transcript", "role": role, "text": text, "final": true})
	return Step{kind: stepText, data: b}
}

// SessionCreated sends a session_created control frame.
func SessionCreated(id string) Step {
	return Text(fmt.Sprintf(`{"type":"session_created","session_id":%q}`, id))
}

// CallCompleted sends the terminal control frame.
func CallCompleted() Step { return Text(`{"type":"call_completed"}`) }

// WaitInput blocks the script until the client sent input_audio_done.
func WaitInput() Step { return Step{kind: stepWaitInput} }

// Drop closes the TCP connection without a close handshake.
func Drop() Step { return Step{kind: stepDrop} }

// Close starts a normal close handshake from the engine side.
func Close() Step { return Step{kind: stepClose} }

// Pause sleeps before the next step.
func Pause(d time.Duration) Step { return Step{kind: stepPause, pause: d} }

// Received is what the client streamed on one session socket.
type Received struct {
	Host      string
	Path      string
	Audio     []byte
	Chunks    int
	InputDone bool
	Texts     []string
}

// Engine is a fake voice engine.
type Engine struct {
	// CreateStatus returns the HTTP status for the nth call creation (1-based).
	// Nil always answers 201.
	CreateStatus func(n int) int
	// Script returns the steps for the nth session socket (1-based).
	Script func(n int) []Step
	// IgnoreClose makes the engine never answer or initiate a close handshake.
	IgnoreClose bool

	server   *httptest.Server
	upgrader websocket.Upgrader
	done     chan struct{}

	mu        sync.Mutex
	creations int
	sockets   int
	apiKeys   []string
	requests  []map[string]any
	received  []*Received
}

// New starts an engine. Configure it before the first request and Close it
// when done.
func New() *Engine {
	e := &Engine{done: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/calls", e.handleCreate)
	mux.HandleFunc("/ws/", e.handleSocket)
	e.server = httptest.NewServer(mux)
	return e
}

// URL is the REST base URL.
func (e *Engine) URL() string { return e.server.URL }

// JoinURL is the socket URL for the nth session.
func (e *Engine) JoinURL(n int) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + fmt.Sprintf("/ws/%d", n)
}

// Close stops the engine.
func (e *Engine) Close() {
	close(e.done)
	e.server.Close()
}

// Creations returns the number of call creation requests received.
func (e *Engine) Creations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.creations
}

// Sockets returns the number of session sockets accepted.
func (e *Engine) Sockets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sockets
}

// APIKeys returns the X-API-Key of every creation request.
func (e *Engine) APIKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.apiKeys...)
}

// Requests returns the decoded body of every creation request.
func (e *Engine) Requests() []map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]map[string]any(nil), e.requests...)
}

// Received returns what the client streamed on each socket, in order.
func (e *Engine) Received() []Received {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Received, len(e.received))
	for i, r := range e.received {
		out[i] = *r
		out[i].Audio = append([]byte(nil), r.Audio...)
		out[i].Texts = append([]string(nil), r.Texts...)
	}
	return out
}

func (e *Engine) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	e.mu.Lock()
	e.creations++
	n := e.creations
	e.apiKeys = append(e.apiKeys, r.Header.Get("X-API-Key"))
	e.requests = append(e.requests, body)
	e.mu.Unlock()

	status := http.StatusCreated
	if e.CreateStatus != nil {
		status = e.CreateStatus(n)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status < 200 || status >= 300 {
		fmt.Fprintf(w, `{"detail":"scripted failure %d"}`, n)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"callId":  fmt.Sprintf("call-%d", n),
		"joinUrl": e.JoinURL(n),
	})
}

func (e *Engine) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	rec := &Received{Host: r.Host, Path: r.URL.Path}
	e.mu.Lock()
	e.sockets++
	n := e.sockets
	e.received = append(e.received, rec)
	e.mu.Unlock()

	if e.IgnoreClose {
		conn.SetCloseHandler(func(int, string) error { return nil })
	}

	inputDone := make(chan struct{})
	readerDone := make(chan struct{})
	go e.readClient(conn, rec, inputDone, readerDone)

	var steps []Step
	if e.Script != nil {
		steps = e.Script(n)
	}
	for _, st := range steps {
		switch st.kind {
		case stepBinary:
			if conn.WriteMessage(websocket.BinaryMessage, st.data) != nil {
				return
			}
		case stepText:
			if conn.WriteMessage(websocket.TextMessage, st.data) != nil {
				return
			}
		case stepWaitInput:
			select {
			case <-inputDone:
			case <-readerDone:
			case <-e.done:
				return
			}
		case stepPause:
			time.Sleep(st.pause)
		case stepDrop:
			_ = conn.UnderlyingConn().Close()
			return
		case stepClose:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
	}

	select {
	case <-readerDone:
	case <-e.done:
		return
	}
	if e.IgnoreClose {
		<-e.done
	}
}

func (e *Engine) readClient(conn *websocket.Conn, rec *Received, inputDone, readerDone chan struct{}) {
	defer close(readerDone)
	var once sync.Once
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e.mu.Lock()
		switch mt {
		case websocket.BinaryMessage:
			rec.Audio = append(rec.Audio, data...)
			rec.Chunks++
		case websocket.TextMessage:
			rec.Texts = append(rec.Texts, string(data))
			if strings.Contains(string(data), `"input_audio_done"`) {
				rec.InputDone = true
				once.Do(func() { close(inputDone) })
			}
		}
		e.mu.Unlock()
	}
}
