package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	"github.com/smallbiznis/goalforge/pkg/db/pagination"
)

func (s *Server) CreateChallenge(c *gin.Context) {
	var req challengedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.challengeSvc.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListChallenges(c *gin.Context) {
	resp, err := s.challengeSvc.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetChallengeByID(c *gin.Context) {
	resp, err := s.challengeSvc.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) JoinChallenge(c *gin.Context) {
	resp, err := s.challengeSvc.Join(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelChallenge(c *gin.Context) {
	resp, err := s.challengeSvc.Cancel(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateScoreRequest struct {
	Score *int64 `json:"score"`
}

func (s *Server) UpdateChallengeScore(c *gin.Context) {
	var req updateScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Score == nil {
		AbortWithError(c, newValidationError("score", "required", "score is required"))
		return
	}

	resp, err := s.challengeSvc.UpdateScore(c.Request.Context(), currentUserID(c), c.Param("id"), *req.Score)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetChallengeLeaderboard(c *gin.Context) {
	resp, err := s.challengeSvc.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListChallengeMessages(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.challengeSvc.ListMessages(c.Request.Context(), currentUserID(c), c.Param("id"), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Messages, "page_info": resp.PageInfo})
}

type postMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) PostChallengeMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.challengeSvc.PostMessage(c.Request.Context(), currentUserID(c), c.Param("id"), req.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
