package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/manager"
	"github.com/aescanero/taskrun/internal/loader"
)

// RunSubmitResponse represents a run submission response.
type RunSubmitResponse struct {
	RunID       string    `json:"run_id"`
	Phase       string    `json:"phase"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleSubmitRun handles workflow run submission. The body is a declarative
// workflow definition; step kinds are resolved against the registry and the
// resulting task list submitted to the run manager.
func (s *Server) handleSubmitRun(c *gin.Context) {
	var def loader.WorkflowDef
	if err := c.ShouldBindJSON(&def); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	tasks, err := def.Build(s.registry)
	if err != nil {
		s.logger.Error("failed to build workflow", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_WORKFLOW",
				Message: err.Error(),
			},
		})
		return
	}

	runID, err := s.manager.Submit(tasks)
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		Phase:       string(manager.PhaseRunning),
		SubmittedAt: time.Now(),
	})
}

// handleListRuns handles listing runs.
func (s *Server) handleListRuns(c *gin.Context) {
	runs := s.manager.List()
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// handleGetRun handles getting run details.
func (s *Server) handleGetRun(c *gin.Context) {
	runID := c.Param("id")

	info, err := s.manager.Get(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// handleGetResult handles getting the final run result.
func (s *Server) handleGetResult(c *gin.Context) {
	runID := c.Param("id")

	info, err := s.manager.Get(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	if info.Phase == manager.PhaseRunning {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "Run not yet completed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       info.ID,
		"phase":        info.Phase,
		"result":       info.Result,
		"completed_at": info.CompletedAt,
	})
}

// handleCancelRun handles run cancellation.
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.Cancel(runID); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":      runID,
		"phase":       "canceling",
		"canceled_at": time.Now(),
	})
}

// handleListSteps lists the registered step kinds.
func (s *Server) handleListSteps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"kinds": s.registry.Kinds(),
	})
}
