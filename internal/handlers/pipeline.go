package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/connectplus/backend/internal/domain"
	"github.com/connectplus/backend/internal/logger"
	"github.com/connectplus/backend/internal/services"
)

type PipelineHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
}

func NewPipelineHandler(log *logger.Logger, p services.PipelineService) *PipelineHandler {
	return &PipelineHandler{
		log:      log.With("handler", "PipelineHandler"),
		pipeline: p,
	}
}

type createPipelineRequest struct {
	DealID    string `json:"deal_id" binding:"required"`
	AccountID string `json:"account_id"`
}

// POST /api/pipelines
func (h *PipelineHandler) CreatePipeline(c *gin.Context) {
	var req createPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondDomainError(c, domain.Wrap(domain.CodeValidation, "pipeline.create", err))
		return
	}
	dealID, err := uuid.Parse(req.DealID)
	if err != nil {
		RespondDomainError(c, domain.NewError(domain.CodeValidation, "pipeline.create", fmt.Sprintf("invalid deal id %q", req.DealID), err))
		return
	}
	var accountID uuid.UUID
	if req.AccountID != "" {
		accountID, err = uuid.Parse(req.AccountID)
		if err != nil {
			RespondDomainError(c, domain.NewError(domain.CodeValidation, "pipeline.create", fmt.Sprintf("invalid account id %q", req.AccountID), err))
			return
		}
	}

	pipeline, err := h.pipeline.Create(c.Request.Context(), nil, dealID, accountID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pipeline)
}

// GET /api/pipelines
func (h *PipelineHandler) ListPipelines(c *gin.Context) {
	var orgFilter *uuid.UUID
	if raw := c.Query("organization_id"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			RespondDomainError(c, domain.NewError(domain.CodeValidation, "pipeline.get_all", fmt.Sprintf("invalid organization id %q", raw), err))
			return
		}
		orgFilter = &orgID
	}
	pipelines, err := h.pipeline.GetAll(c.Request.Context(), nil, orgFilter)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, pipelines)
}

// GET /api/pipelines/:id
func (h *PipelineHandler) GetPipeline(c *gin.Context) {
	pipelineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondDomainError(c, domain.NewError(domain.CodeValidation, "pipeline.get_one", fmt.Sprintf("invalid pipeline id %q", c.Param("id")), err))
		return
	}
	pipeline, err := h.pipeline.GetOne(c.Request.Context(), nil, pipelineID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, pipeline)
}

// PATCH /api/pipelines/:id/steps/*stepName
func (h *PipelineHandler) TransitionStep(c *gin.Context) {
	pipelineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondDomainError(c, domain.NewError(domain.CodeValidation, "pipeline.transition_step", fmt.Sprintf("invalid pipeline id %q", c.Param("id")), err))
		return
	}
	// The wildcard param keeps its leading slash.
	stepName := strings.TrimPrefix(c.Param("stepName"), "/")
	if stepName == "" {
		RespondDomainError(c, domain.NewError(domain.CodeValidation, "pipeline.transition_step", "missing step name", nil))
		return
	}

	var patch services.StepPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondDomainError(c, domain.Wrap(domain.CodeValidation, "pipeline.transition_step", err))
		return
	}

	step, err := h.pipeline.TransitionStep(c.Request.Context(), nil, pipelineID, stepName, patch)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, step)
}
