package admin

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/mantra/internal/auth"
	"github.com/danmuck/mantra/internal/observability"
	"github.com/danmuck/mantra/internal/parser"
	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/danmuck/mantra/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxMessageBytes = 1 << 20

type FiberView struct {
	Name   string `json:"name"`
	Worker int    `json:"worker"`
	Tape   string `json:"tape"`
}

type activeRequest struct {
	Name   string `json:"name" binding:"required"`
	Active *bool  `json:"active" binding:"required"`
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
			"workers": s.pool.Workers(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/fibers", func(c *gin.Context) {
		infos := s.pool.Fibers()
		views := make([]FiberView, 0, len(infos))
		for _, info := range infos {
			views = append(views, FiberView{Name: info.Name, Worker: info.Worker, Tape: term.Format(info.Tape)})
		}
		c.JSON(http.StatusOK, gin.H{"fibers": views})
	})

	r.GET("/fibers/:name", s.getFiber)
	r.POST("/fibers/:name/messages", s.mutating(), s.postMessage)

	r.GET("/modules", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"modules": s.rules.Modules()})
	})

	r.POST("/modules/active", s.mutating(), func(c *gin.Context) {
		var req activeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.rules.SetActive(req.Name, *req.Active); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, rules.ErrModuleNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "name": req.Name, "active": *req.Active})
	})

	r.GET("/rules/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.rules.Stats())
	})

	r.GET("/extensions", func(c *gin.Context) {
		if s.loader == nil {
			c.JSON(http.StatusOK, gin.H{"extensions": []any{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"extensions": s.loader.Loaded()})
	})
}

func (s *Server) mutating() gin.HandlerFunc {
	if s.guard == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return auth.Middleware(s.guard)
}

func (s *Server) getFiber(c *gin.Context) {
	name, ok := term.Lookup(c.Param(observability.FiberParam))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%v: %s", pool.ErrUnknownFiber, c.Param(observability.FiberParam))})
		return
	}
	tape, err := s.pool.Snapshot(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "tlv" {
		b, err := wire.EncodeTerms(tape)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, wire.ContentType, b)
		return
	}
	worker, _ := s.pool.WorkerOf(name)
	c.JSON(http.StatusOK, FiberView{Name: name.Name(), Worker: worker, Tape: term.Format(tape)})
}

func (s *Server) postMessage(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("message exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var msg []term.Term
	format := "text"
	if strings.HasPrefix(c.ContentType(), wire.ContentType) {
		format = "tlv"
		msg, err = wire.DecodeTerms(body)
	} else {
		msg, err = parser.Parse(string(body))
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.pool.SendNamed(c.Param(observability.FiberParam), msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pool.ErrPoolClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Set(observability.MessageTermsKey, len(msg))
	c.Set(observability.MessageFormatKey, format)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "terms": len(msg)})
}
