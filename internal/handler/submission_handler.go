package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/hireloop/hireloop-api/internal/dto"
	"github.com/hireloop/hireloop-api/internal/service"
	"github.com/hireloop/hireloop-api/internal/utils"
	"github.com/hireloop/hireloop-api/pkg/judge0"
)

// SubmissionHandler exposes the code-evaluation endpoints.
type SubmissionHandler struct {
	service   service.SubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group. Extra middleware
// applies to the submit route only, so status polling stays unthrottled.
func (h *SubmissionHandler) Register(router fiber.Router, submitMiddleware ...fiber.Handler) {
	router.Post("", append(submitMiddleware, h.submit)...)
	router.Get("/:id", h.get)
}

// RegisterInterviewRoutes wires the interview-scoped submission listing.
func (h *SubmissionHandler) RegisterInterviewRoutes(router fiber.Router) {
	router.Get("/:interviewId/submissions", h.listByInterview)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ownerID := userIDFromContext(c)
	if ownerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.service.Submit(c.UserContext(), ownerID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "code submitted successfully", response)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "submission id is required")
	}

	ownerID := userIDFromContext(c)
	if ownerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.service.Get(c.UserContext(), id, ownerID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", response)
}

func (h *SubmissionHandler) listByInterview(c *fiber.Ctx) error {
	interviewID := strings.TrimSpace(c.Params("interviewId"))
	if interviewID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "interview id is required")
	}

	if userIDFromContext(c) == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	responses, err := h.service.ListByInterview(c.UserContext(), interviewID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", responses)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, judge0.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("submission operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
