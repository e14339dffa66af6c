package websocket

import "github.com/stemsi/exstem-proctor/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
	ActionCheat    Action = "cheat"
)

// RequestEnvelope is used to peek at the action before full parsing.
// ID is chosen by the client and echoed on the reply.
type RequestEnvelope struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
}

// AutosaveRequest pushes the full answer map; the server keeps the latest.
type AutosaveRequest struct {
	Action  Action      `json:"action"`
	ID      string      `json:"id,omitempty"`
	Answers map[int]int `json:"answers"`
}

// CheatRequest reports one tab switch.
type CheatRequest struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
}

// SubmitRequest carries the same payload as the HTTP submit endpoint.
type SubmitRequest struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
	model.SubmitRequest
}

// PingRequest keeps the connection alive.
type PingRequest struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventGraded  Event = "graded"
	EventLogged  Event = "logged"
	EventPong    Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

// GradedResponse answers a submit; Success mirrors the HTTP ack.
// AlreadySubmitted marks a replay of the recorded grade for a repeated submit.
type GradedResponse struct {
	Event            Event  `json:"event"`
	ID               string `json:"id,omitempty"`
	Success          bool   `json:"success"`
	Score            int    `json:"score"`
	Total            int    `json:"total"`
	AlreadySubmitted bool   `json:"already_submitted,omitempty"`
}

type LoggedResponse struct {
	Event Event  `json:"event"`
	ID    string `json:"id,omitempty"`
	Count int64  `json:"count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event  `json:"event"`
	ID    string `json:"id,omitempty"`
}
