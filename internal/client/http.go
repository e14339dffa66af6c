package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Gateway routes used by the exam client.
const (
	PaperPath        = "/api/v1/student/paper"
	SubmitPath       = "/api/v1/student/submit_test"
	LogTabSwitchPath = "/api/v1/student/log_tab_switch"
	ScorePath        = "/api/v1/student/score"
	StreamPath       = "/ws/v1/student/stream"
)

// HTTPTransport talks to the gateway's REST endpoints with a student token.
// It satisfies session.Submitter and session.ViolationLogger.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPTransport creates a transport for baseURL. A nil client uses a
// client without its own timeout; callers bound requests through ctx.
func NewHTTPTransport(baseURL, token string, client *http.Client, log zerolog.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		log:     log.With().Str("component", "http_transport").Logger(),
	}
}

// Paper fetches the student's question set.
func (t *HTTPTransport) Paper(ctx context.Context) (model.Paper, error) {
	var paper model.Paper
	body, err := t.do(ctx, http.MethodGet, PaperPath, nil)
	if err != nil {
		return paper, err
	}
	if err := json.Unmarshal([]byte(body.Get("data").Raw), &paper); err != nil {
		return paper, fmt.Errorf("decode paper: %w", err)
	}
	return paper, nil
}

// Submit posts the final payload. A reply of success=false comes back as an
// ack with Success unset so the caller can roll back.
//
// ALREADY_SUBMITTED carrying success=true means an earlier attempt was graded
// but its reply never arrived; that is returned as the accepted ack.
func (t *HTTPTransport) Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitAck, error) {
	body, err := t.do(ctx, http.MethodPost, SubmitPath, req)
	if err != nil {
		if IsCode(err, AlreadySubmittedCode) && body.Get("data.success").Bool() {
			t.log.Info().Str("attempt_id", req.AttemptID).Msg("Submission already recorded by an earlier attempt")
			return decodeAck(body.Get("data")), nil
		}
		return model.SubmitAck{}, err
	}
	return decodeAck(body.Get("data")), nil
}

func decodeAck(data gjson.Result) model.SubmitAck {
	return model.SubmitAck{
		Success: data.Get("success").Bool(),
		Score:   int(data.Get("score").Int()),
		Total:   int(data.Get("total").Int()),
	}
}

// LogViolation reports one tab switch.
func (t *HTTPTransport) LogViolation(ctx context.Context) error {
	_, err := t.do(ctx, http.MethodPost, LogTabSwitchPath, struct{}{})
	return err
}

// Score fetches the summary shown after a successful submission.
func (t *HTTPTransport) Score(ctx context.Context) (model.ScoreSummary, error) {
	var summary model.ScoreSummary
	body, err := t.do(ctx, http.MethodGet, ScorePath, nil)
	if err != nil {
		return summary, err
	}
	if err := json.Unmarshal([]byte(body.Get("data").Raw), &summary); err != nil {
		return summary, fmt.Errorf("decode score: %w", err)
	}
	return summary, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, payload interface{}) (gjson.Result, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s: %w", path, err)
	}

	t.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Gateway call")

	if !gjson.ValidBytes(raw) {
		if resp.StatusCode >= 300 {
			return gjson.Result{}, &APIError{Status: resp.StatusCode}
		}
		return gjson.Result{}, fmt.Errorf("%s: %w", path, ErrInvalidResponse)
	}
	body := gjson.ParseBytes(raw)
	if resp.StatusCode >= 300 {
		return body, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}
