package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// WSTransport multiplexes submit, tab-switch and autosave calls over the
// gateway's student stream. Every request carries an id and waits for the
// reply with the same id. When the stream drops, the next call redials.
type WSTransport struct {
	baseURL string
	token   string
	log     zerolog.Logger

	dialMu  sync.Mutex
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan gjson.Result
	broken  bool // read loop of conn has exited
	closed  bool // Close was called
	done    chan struct{}
}

// StreamURL turns an http(s) base URL into the stream endpoint.
func StreamURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + StreamPath
}

// DialWS connects to the stream and starts the reader.
func DialWS(ctx context.Context, baseURL, token string, log zerolog.Logger) (*WSTransport, error) {
	t := &WSTransport{
		baseURL: baseURL,
		token:   token,
		log:     log.With().Str("component", "ws_transport").Logger(),
		pending: make(map[string]chan gjson.Result),
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	t.attach(conn)
	return t, nil
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, StreamURL(t.baseURL), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stream: %w", &APIError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	return conn, nil
}

// attach makes conn the current connection and starts its reader. Callers
// hold no lock.
func (t *WSTransport) attach(conn *websocket.Conn) {
	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.broken = false
	t.done = done
	t.mu.Unlock()
	go t.readLoop(conn, done)
}

// connection returns a live connection, redialing once the previous one has
// dropped.
func (t *WSTransport) connection(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	conn, broken, closed := t.conn, t.broken, t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !broken {
		return conn, nil
	}

	t.dialMu.Lock()
	defer t.dialMu.Unlock()

	// Another caller may have redialed while we waited.
	t.mu.Lock()
	conn, broken, closed = t.conn, t.broken, t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !broken {
		return conn, nil
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("redial: %w", err)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	t.mu.Unlock()

	t.attach(conn)
	t.log.Info().Msg("Stream reconnected")
	return conn, nil
}

// Submit sends the final payload and waits for the graded reply.
func (t *WSTransport) Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitAck, error) {
	reply, err := t.call(ctx, func(id string) interface{} {
		return ws.SubmitRequest{Action: ws.ActionSubmit, ID: id, SubmitRequest: req}
	})
	if err != nil {
		return model.SubmitAck{}, err
	}
	if reply.Get("already_submitted").Bool() {
		t.log.Info().Str("attempt_id", req.AttemptID).Msg("Submission already recorded by an earlier attempt")
	}
	return decodeAck(reply), nil
}

// LogViolation reports one tab switch.
func (t *WSTransport) LogViolation(ctx context.Context) error {
	_, err := t.call(ctx, func(id string) interface{} {
		return ws.CheatRequest{Action: ws.ActionCheat, ID: id}
	})
	return err
}

// SaveAnswers pushes an autosave copy of the answers.
func (t *WSTransport) SaveAnswers(ctx context.Context, answers map[int]int) error {
	_, err := t.call(ctx, func(id string) interface{} {
		return ws.AutosaveRequest{Action: ws.ActionAutosave, ID: id, Answers: answers}
	})
	return err
}

// Ping round-trips a keepalive.
func (t *WSTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, func(id string) interface{} {
		return ws.PingRequest{Action: ws.ActionPing, ID: id}
	})
	return err
}

// Close sends a close frame and fails every waiting call. The transport
// does not redial afterwards.
func (t *WSTransport) Close() error {
	t.dialMu.Lock()
	defer t.dialMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn, broken, done := t.conn, t.broken, t.done
	t.mu.Unlock()

	if !broken {
		t.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
	}

	err := conn.Close()
	<-done
	return err
}

func (t *WSTransport) call(ctx context.Context, build func(id string) interface{}) (gjson.Result, error) {
	conn, err := t.connection(ctx)
	if err != nil {
		return gjson.Result{}, err
	}

	id := uuid.NewString()
	reply := make(chan gjson.Result, 1)

	t.mu.Lock()
	if t.closed || t.broken || t.conn != conn {
		t.mu.Unlock()
		return gjson.Result{}, ErrClosed
	}
	t.pending[id] = reply
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	msg, err := json.Marshal(build(id))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode request: %w", err)
	}

	t.writeMu.Lock()
	deadline, _ := ctx.Deadline() // zero clears an earlier call's deadline
	_ = conn.SetWriteDeadline(deadline)
	err = conn.WriteMessage(websocket.TextMessage, msg)
	t.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("write request: %w", err)
	}

	select {
	case res, ok := <-reply:
		if !ok {
			return gjson.Result{}, ErrClosed
		}
		if ws.Event(res.Get("event").String()) == ws.EventError {
			return res, &APIError{Code: "STREAM_ERROR", Message: res.Get("error").String()}
		}
		return res, nil
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	}
}

// readLoop delivers replies for conn. When it exits every waiting call on
// conn fails with ErrClosed and the next call redials.
func (t *WSTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.broken = true
			for id, ch := range t.pending {
				close(ch)
				delete(t.pending, id)
			}
		}
		t.mu.Unlock()
		close(done)
	}()

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				t.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				t.log.Debug().Msg("Stream closed")
			}
			return
		}
		if !gjson.ValidBytes(data) {
			t.log.Warn().Int("bytes", len(data)).Msg("Dropping invalid frame")
			continue
		}

		res := gjson.ParseBytes(data)
		id := res.Get("id").String()

		t.mu.Lock()
		ch, ok := t.pending[id]
		if ok {
			delete(t.pending, id)
		}
		t.mu.Unlock()

		if !ok {
			t.log.Debug().Str("event", res.Get("event").String()).Msg("Unsolicited frame")
			continue
		}
		ch <- res
	}
}
