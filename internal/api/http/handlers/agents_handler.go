package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AgentsHandler serves the agent directory and performance views.
type AgentsHandler struct {
	service   *service.AssignmentService
	validator *dto.Validator
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(assignmentService *service.AssignmentService, validator *dto.Validator) *AgentsHandler {
	return &AgentsHandler{service: assignmentService, validator: validator}
}

// ListAgents GET /agents.
func (h *AgentsHandler) ListAgents(c *fiber.Ctx) error {
	filter := service.AgentListFilter{}
	if raw := c.Query("role"); raw != "" {
		role := domain.Role(raw)
		if !role.Staff() {
			return apperrors.NewValidationError("role must be agent or manager", map[string]any{"role": raw})
		}
		filter.Role = &role
	}
	if raw := c.Query("active"); raw != "" {
		active := c.QueryBool("active")
		filter.Active = &active
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize

	agents, err := h.service.ListAgents(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, dto.NewAgentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Workload GET /agents/workload.
func (h *AgentsHandler) Workload(c *fiber.Ctx) error {
	ranking, err := h.service.Workload(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkload(ranking)})
}

// UpsertAgent PUT /agents/:id.
func (h *AgentsHandler) UpsertAgent(c *fiber.Ctx) error {
	var req dto.UpsertAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Validate(&req); err != nil {
		return err
	}
	agent, err := h.service.RegisterAgent(c.UserContext(), service.AgentProfileInput{
		ID:       c.Params("id"),
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		Skills:   req.Skills,
		IsActive: *req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// AgentMetrics GET /agents/:id/metrics.
func (h *AgentsHandler) AgentMetrics(c *fiber.Ctx) error {
	agent, records, err := h.service.AgentPerformance(c.UserContext(), c.Params("id"), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentPerformance(agent, records)})
}
