package channel

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shadebot/internal/dispatch"
	"shadebot/internal/logging"
	"shadebot/internal/store"
	"shadebot/internal/types"
)

const defaultHistory = 20

// Server is the HTTP channel.
type Server struct {
	engine *gin.Engine
	bot    Bot
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Text        string `json:"text"`
	CampaignRef string `json:"campaign_ref,omitempty"`
}

// MessageResponse is the reply to POST /v1/messages.
type MessageResponse struct {
	RequestID string      `json:"request_id"`
	Handler   string      `json:"handler"`
	State     types.State `json:"state"`
	Outcome   OutcomeView `json:"outcome"`
}

// ConversationResponse is a record plus its recent turns.
type ConversationResponse struct {
	Record  *types.ConversationRecord `json:"record"`
	History []store.TurnEntry         `json:"history,omitempty"`
}

// NewServer builds the router. mode is a gin mode ("release", "debug",
// "test"); empty keeps gin's current mode.
func NewServer(bot Bot, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLog())

	s := &Server{engine: engine, bot: bot}

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.POST("/messages", s.postMessage)
	v1.GET("/conversations", s.listConversations)
	v1.GET("/conversations/:id", s.getConversation)
	v1.DELETE("/conversations/:id", s.deleteConversation)
	v1.POST("/conversations/:id/release", s.release)
	v1.POST("/conversations/:id/takeover", s.takeOver)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.API("http channel listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.APIDebug("%s %s -> %d in %v", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) postMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := s.bot.Process(c.Request.Context(), dispatch.Message{
		UserID:      req.UserID,
		Text:        req.Text,
		CampaignRef: req.CampaignRef,
	})
	c.JSON(http.StatusOK, MessageResponse{
		RequestID: res.RequestID,
		Handler:   res.Handler,
		State:     res.State,
		Outcome:   ViewOf(res.Outcome),
	})
}

func (s *Server) listConversations(c *gin.Context) {
	recs, err := s.bot.List(c.Request.Context(), types.State(c.Query("state")))
	if errors.Is(err, dispatch.ErrListUnsupported) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	if recs == nil {
		recs = []*types.ConversationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": recs})
}

func (s *Server) getConversation(c *gin.Context) {
	id := c.Param("id")
	limit := defaultHistory
	if q := c.Query("history"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "history must be a non-negative integer"})
			return
		}
		limit = n
	}

	rec, err := s.bot.Record(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := ConversationResponse{Record: rec}
	if limit > 0 {
		if resp.History, err = s.bot.History(c.Request.Context(), id, limit); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.bot.Reset(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) release(c *gin.Context) {
	s.external(c, s.bot.Release)
}

func (s *Server) takeOver(c *gin.Context) {
	s.external(c, s.bot.TakeOver)
}

func (s *Server) external(c *gin.Context, action func(context.Context, string) (*types.ConversationRecord, error)) {
	rec, err := action(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) fail(c *gin.Context, err error) {
	logging.APIWarn("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
