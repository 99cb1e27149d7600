package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
)

func (s *Server) CreateHabit(c *gin.Context) {
	var req habitdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.habitSvc.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListHabits(c *gin.Context) {
	resp, err := s.habitSvc.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetHabitByID(c *gin.Context) {
	resp, err := s.habitSvc.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteHabit(c *gin.Context) {
	if err := s.habitSvc.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type completeHabitRequest struct {
	SubmittedAt string `json:"submitted_at"`
}

// CompleteHabit answers with the bare result object so clients can read
// success and new_streak_length without an envelope.
func (s *Server) CompleteHabit(c *gin.Context) {
	var req completeHabitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	submittedAt, err := parseOptionalTime(req.SubmittedAt)
	if err != nil {
		AbortWithError(c, newValidationError("submitted_at", "invalid_submitted_at", "invalid submitted_at"))
		return
	}

	resp, err := s.progressSvc.SubmitCompletion(c.Request.Context(), progressdomain.SubmitRequest{
		UserID:      currentUserID(c),
		HabitID:     c.Param("id"),
		SubmittedAt: submittedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
