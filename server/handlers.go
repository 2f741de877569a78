package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/pipeline"
)

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"sources": s.runner.Registry().Len(),
	})
}

func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.runner.Statuses()})
}

func (s *Server) getSource(c *gin.Context) {
	st, ok := s.runner.Status(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// runSource 同步执行一次运行并返回结果；数据源忙碌时返回 409
func (s *Server) runSource(c *gin.Context) {
	name := c.Param("name")
	out, err := s.runner.Run(c.Request.Context(), name)
	if errors.Is(err, pipeline.ErrSourceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "manual run failed", clog.String("source", name), clog.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.InfoContext(c.Request.Context(), "manual run triggered",
		clog.String("source", name),
		clog.String("run_id", out.RunID),
		clog.String("status", string(out.Status)))
	if out.Status == pipeline.StatusSkipped {
		c.JSON(http.StatusConflict, out)
		return
	}
	c.JSON(http.StatusOK, out)
}
