package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the student stream: the same operations as the REST
// endpoints over one connection, each reply echoing the request id.
type WSHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// StudentStream godoc
// WS /ws/v1/student/stream
// Actions: autosave, cheat, submit, ping.
func (h *WSHandler) StudentStream(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	wsLog := h.log.With().Int("student_id", student.ID).Logger()
	wsLog.Info().Msg("Student connected")

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if !gjson.ValidBytes(data) {
			_ = ws.WriteError(conn, "", "invalid json")
			continue
		}
		envelope := gjson.ParseBytes(data)
		id := envelope.Get("id").String()

		var writeErr error
		switch ws.Action(envelope.Get("action").String()) {
		case ws.ActionAutosave:
			writeErr = h.handleAutosave(ctx, conn, wsLog, student, id, data)
		case ws.ActionCheat:
			writeErr = h.handleCheat(ctx, conn, wsLog, student, id)
		case ws.ActionSubmit:
			writeErr = h.handleSubmit(ctx, conn, wsLog, student, id, data)
		case ws.ActionPing:
			writeErr = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, ID: id})
		default:
			action := envelope.Get("action").String()
			wsLog.Warn().Str("action", action).Msg("Unknown action")
			writeErr = ws.WriteError(conn, id, "unknown action: "+action)
		}
		if writeErr != nil {
			wsLog.Debug().Err(writeErr).Msg("Write failed, closing")
			return
		}
	}
}

// handleAutosave stores the latest answer map and queues it for persistence.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, student model.Student, id string, data []byte) error {
	var msg ws.AutosaveRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return ws.WriteError(conn, id, "invalid autosave payload")
	}

	if err := h.sessions.SaveAnswers(ctx, student, msg.Answers); err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			return ws.WriteError(conn, id, "already submitted")
		}
		wsLog.Error().Err(err).Msg("Autosave failed")
		return ws.WriteError(conn, id, "save failed")
	}
	return ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, ID: id, Status: "saved"})
}

// handleCheat counts one tab switch.
func (h *WSHandler) handleCheat(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, student model.Student, id string) error {
	count, err := h.sessions.LogViolation(ctx, student)
	if err != nil {
		wsLog.Error().Err(err).Msg("Log tab switch failed")
		return ws.WriteError(conn, id, "log failed")
	}
	return ws.WriteTyped(conn, ws.LoggedResponse{Event: ws.EventLogged, ID: id, Count: count})
}

// handleSubmit grades the submission with the same rules as the REST endpoint.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, student model.Student, id string, data []byte) error {
	var msg ws.SubmitRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return ws.WriteError(conn, id, "invalid submit payload")
	}
	if fields := validator.Struct(&msg.SubmitRequest); fields != nil {
		return ws.WriteError(conn, id, joinFields(fields))
	}

	result, err := h.sessions.Submit(ctx, student, msg.SubmitRequest)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySubmitted):
			if result != nil {
				return ws.WriteTyped(conn, ws.GradedResponse{
					Event:            ws.EventGraded,
					ID:               id,
					Success:          true,
					Score:            result.Score,
					Total:            result.TotalQuestions,
					AlreadySubmitted: true,
				})
			}
			return ws.WriteError(conn, id, string(response.ErrAlreadySubmitted))
		case errors.Is(err, service.ErrQuestionSetNotFound):
			return ws.WriteError(conn, id, string(response.ErrQuestionSetNotFound))
		}
		wsLog.Error().Err(err).Msg("Submit failed")
		return ws.WriteError(conn, id, "grading failed")
	}

	return ws.WriteTyped(conn, ws.GradedResponse{
		Event:   ws.EventGraded,
		ID:      id,
		Success: true,
		Score:   result.Score,
		Total:   result.TotalQuestions,
	})
}

func joinFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for field, problem := range fields {
		parts = append(parts, field+": "+problem)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
