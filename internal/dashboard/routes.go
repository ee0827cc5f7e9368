package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldline/trajet/internal/agent"
	"github.com/fieldline/trajet/internal/recorder"
	"github.com/fieldline/trajet/internal/session"
)

func registerRoutes(router *gin.Engine, s *server) {
	api := router.Group("/api")

	api.POST("/sessions", s.createSession)
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.getSession)
	api.GET("/sessions/:id/turns", s.getTurns)
	api.GET("/sessions/:id/metrics", s.getMetrics)
	api.GET("/sessions/:id/analysis", s.getAnalysis)

	api.POST("/sessions/:id/pause", s.pauseSession)
	api.POST("/sessions/:id/resume", s.resumeSession)
	api.POST("/sessions/:id/end", s.endSession)
	api.POST("/sessions/:id/human", s.submitHumanTurn)
	api.POST("/sessions/:id/force", s.forceInvoke)
	api.POST("/sessions/:id/inject", s.injectPrompt)

	api.GET("/sessions/:id/events", s.streamEvents)
	api.GET("/sessions/:id/ws", s.streamWS)
}

type createSessionRequest struct {
	Provocation string   `json:"provocation" binding:"required"`
	Agents      []string `json:"agents"`
	Human       bool     `json:"human"`
	Seed        int64    `json:"seed"`
	MaxTurns    int      `json:"max_turns"`
}

type sessionResponse struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Provocation string    `json:"provocation"`
	Agents      []string  `json:"agents"`
	Seed        int64     `json:"seed"`
	TurnCount   int       `json:"turn_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roster, err := s.roster(req.Agents)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched := s.sched
	if req.MaxTurns > 0 {
		sched.MaxTurns = req.MaxTurns
	}
	if req.Seed != 0 {
		sched.Seed = req.Seed
	}
	if req.Human {
		sched.HumanParticipant = true
	}

	var rec session.Recorder
	if s.store != nil {
		rec = s.store
	}

	sess, err := session.Start(session.Params{
		Provocation: req.Provocation,
		Agents:      roster,
		Generator:   s.gen,
		Embedder:    s.emb,
		Recorder:    rec,
		Logger:      s.log,
		Scheduler:   sched,
		Analysis:    s.analysis,
		MaxRetries:  s.retries,
		Backoff:     s.backoff,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.reg.Add(sess)

	c.JSON(http.StatusCreated, sessionView(sess))
}

// roster resolves requested agent IDs against the configured roster. An
// empty request selects every configured agent.
func (s *server) roster(ids []string) ([]agent.Agent, error) {
	if len(ids) == 0 {
		return append([]agent.Agent(nil), s.agents...), nil
	}
	byID := make(map[string]agent.Agent, len(s.agents))
	for _, a := range s.agents {
		byID[a.ID] = a
	}
	roster := make([]agent.Agent, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, errors.New("unknown agent: " + id)
		}
		roster = append(roster, a)
	}
	return roster, nil
}

func sessionView(sess *session.Session) sessionResponse {
	agents := sess.Agents()
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return sessionResponse{
		ID:          sess.ID(),
		State:       sess.State(),
		Provocation: sess.Provocation(),
		Agents:      ids,
		Seed:        sess.Seed(),
		TurnCount:   sess.TurnCount(),
		CreatedAt:   sess.CreatedAt(),
	}
}

func (s *server) listSessions(c *gin.Context) {
	if s.store == nil {
		live := s.reg.List()
		views := make([]sessionResponse, len(live))
		for i, sess := range live {
			views[i] = sessionView(sess)
		}
		c.JSON(http.StatusOK, gin.H{"sessions": views})
		return
	}
	summaries, err := s.store.ListSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (s *server) getSession(c *gin.Context) {
	sess, err := s.reg.Get(c.Param("id"))
	if err == nil {
		c.JSON(http.StatusOK, sessionView(sess))
		return
	}
	if s.store != nil {
		rec, serr := s.store.GetSession(c.Param("id"))
		if serr == nil {
			c.JSON(http.StatusOK, rec)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
}

func (s *server) getTurns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}
	turns, err := s.store.GetTurns(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func (s *server) getMetrics(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}
	points, err := s.store.GetMetrics(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": points})
}

func (s *server) getAnalysis(c *gin.Context) {
	// Prefer the live session result when present: it is available the
	// moment the session completes, before any read round-trips the DB.
	if sess, err := s.reg.Get(c.Param("id")); err == nil {
		result, aerr := sess.Analysis()
		if aerr == nil {
			c.JSON(http.StatusOK, result)
			return
		}
		if errors.Is(aerr, session.ErrAnalysisNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": aerr.Error()})
			return
		}
	}
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	rec, err := s.store.GetAnalysis(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *server) pauseSession(c *gin.Context) {
	s.lifecycle(c, func(sess *session.Session) error { return sess.Pause() })
}

func (s *server) resumeSession(c *gin.Context) {
	s.lifecycle(c, func(sess *session.Session) error { return sess.Resume() })
}

func (s *server) endSession(c *gin.Context) {
	sess, err := s.reg.Get(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if err := sess.End(); err != nil {
		s.renderError(c, err)
		return
	}
	result, err := sess.Analysis()
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type humanTurnRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *server) submitHumanTurn(c *gin.Context) {
	var req humanTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.lifecycle(c, func(sess *session.Session) error {
		return sess.SubmitHumanTurn(req.Content)
	})
}

type forceRequest struct {
	Agent string `json:"agent" binding:"required"`
}

func (s *server) forceInvoke(c *gin.Context) {
	var req forceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.lifecycle(c, func(sess *session.Session) error {
		return sess.ForceInvoke(req.Agent)
	})
}

type injectRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *server) injectPrompt(c *gin.Context) {
	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.lifecycle(c, func(sess *session.Session) error {
		return sess.InjectPrompt(req.Content)
	})
}

func (s *server) lifecycle(c *gin.Context, op func(*session.Session) error) {
	sess, err := s.reg.Get(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if err := op(sess); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

func (s *server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, recorder.ErrNotFound),
		errors.Is(err, session.ErrUnknownAgent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrSessionFinalized),
		errors.Is(err, session.ErrAnalysisNotReady), errors.Is(err, recorder.ErrAnalysisNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
