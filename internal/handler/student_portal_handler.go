package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// StudentPortalHandler serves the endpoints the exam client talks to.
type StudentPortalHandler struct {
	questions *service.QuestionService
	sessions  *service.ExamSessionService
	log       zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	questions *service.QuestionService,
	sessions *service.ExamSessionService,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		questions: questions,
		sessions:  sessions,
		log:       log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/student/paper
// Returns the student's question set without correct answers.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	paper, err := h.questions.Paper(c.Request.Context(), student)
	if err != nil {
		if errors.Is(err, service.ErrQuestionSetNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrQuestionSetNotFound)
			return
		}
		h.log.Error().Err(err).Int("student_id", student.ID).Msg("Load paper failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// SubmitTest godoc
// POST /api/v1/student/submit_test
// Grades the submission and records it. Only one submission per student.
func (h *StudentPortalHandler) SubmitTest(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.Submit(c.Request.Context(), student, req)
	if err != nil {
		rejected := model.SubmitAck{Success: false}
		switch {
		case errors.Is(err, service.ErrAlreadySubmitted):
			// A client that lost the first reply gets the recorded ack back.
			if result != nil {
				response.FailWithData(c, http.StatusConflict, response.ErrAlreadySubmitted, model.SubmitAck{
					Success: true,
					Score:   result.Score,
					Total:   result.TotalQuestions,
				})
				return
			}
			response.FailWithData(c, http.StatusConflict, response.ErrAlreadySubmitted, rejected)
		case errors.Is(err, service.ErrQuestionSetNotFound):
			response.FailWithData(c, http.StatusNotFound, response.ErrQuestionSetNotFound, rejected)
		default:
			h.log.Error().Err(err).Int("student_id", student.ID).Msg("Submit failed")
			response.FailWithData(c, http.StatusInternalServerError, response.ErrSubmitFailed, rejected)
		}
		return
	}

	response.Success(c, http.StatusOK, model.SubmitAck{
		Success: true,
		Score:   result.Score,
		Total:   result.TotalQuestions,
	})
}

// LogTabSwitch godoc
// POST /api/v1/student/log_tab_switch
// Counts one tab switch. The body is ignored.
func (h *StudentPortalHandler) LogTabSwitch(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	count, err := h.sessions.LogViolation(c.Request.Context(), student)
	if err != nil {
		h.log.Error().Err(err).Int("student_id", student.ID).Msg("Log tab switch failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"success": true, "tab_switches": count})
}

// GetScore godoc
// GET /api/v1/student/score
// Returns the graded summary with the scholarship tier.
func (h *StudentPortalHandler) GetScore(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	summary, err := h.sessions.Score(c.Request.Context(), student)
	if err != nil {
		if errors.Is(err, service.ErrNotSubmitted) {
			response.Fail(c, http.StatusNotFound, response.ErrNotSubmitted)
			return
		}
		h.log.Error().Err(err).Int("student_id", student.ID).Msg("Load score failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, summary)
}
