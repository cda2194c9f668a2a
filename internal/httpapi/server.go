package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/document"
	"github.com/joelkehle/inventavault/internal/ledger"
	"github.com/joelkehle/inventavault/internal/logging"
	"github.com/joelkehle/inventavault/internal/metrics"
	"github.com/joelkehle/inventavault/internal/patent"
	"github.com/joelkehle/inventavault/internal/pipeline"
)

// PDFRenderer prints a document. *document.PDFRenderer satisfies it.
type PDFRenderer interface {
	Render(ctx context.Context, doc patent.Document) ([]byte, error)
}

type LedgerVerifier interface {
	Verify(ctx context.Context, documentHash string) (pipeline.LedgerEntry, error)
	VerifyChain(ctx context.Context) error
}

type Options struct {
	Machine  *pipeline.Machine
	Store    *RunStore
	PDF      PDFRenderer
	Ledger   LedgerVerifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	machine *pipeline.Machine
	store   *RunStore
	pdf     PDFRenderer
	ledger  LedgerVerifier
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewServer(opts Options) http.Handler {
	store := opts.Store
	if store == nil {
		store = NewRunStore()
	}
	s := &Server{
		machine: opts.Machine,
		store:   store,
		pdf:     opts.PDF,
		ledger:  opts.Ledger,
		logger:  logging.OrNop(opts.Logger).Named("httpapi"),
		metrics: opts.Metrics,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.observe)

	v1 := r.Group("/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/runs", s.handleSubmit)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.POST("/runs/:id/advance", s.handleAdvance)
	v1.POST("/runs/:id/retry", s.handleRetry)
	v1.DELETE("/runs/:id", s.handleDelete)
	v1.GET("/runs/:id/document", s.handleDocument)
	v1.GET("/ledger", s.handleLedgerChain)
	v1.GET("/ledger/:hash", s.handleLedger)

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.ObserveRequest(route, strconv.Itoa(c.Writer.Status()))
	s.logger.Debug("http_request",
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "runs": s.store.Len()})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var idea patent.Idea
	if err := c.ShouldBindJSON(&idea); err != nil {
		writeError(c, errValidation("invalid JSON: "+err.Error()))
		return
	}
	run, err := s.machine.SubmitIdea(idea)
	if err != nil {
		if errors.Is(err, patent.ErrInvalidIdea) {
			writeError(c, errValidation(err.Error()))
			return
		}
		writeError(c, err)
		return
	}
	s.store.Put(run)
	c.JSON(http.StatusCreated, viewOf(run))
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.store.Get(c.Param("id"))
	if !ok {
		writeError(c, errNotFound("run not found"))
		return
	}
	c.JSON(http.StatusOK, viewOf(run))
}

func (s *Server) handleAdvance(c *gin.Context) {
	s.transition(c, s.machine.Advance)
}

func (s *Server) handleRetry(c *gin.Context) {
	s.transition(c, s.machine.Retry)
}

// transition checks a run out for the duration of one machine step. The step
// outlives a disconnecting client so a half-recorded run is never lost.
func (s *Server) transition(c *gin.Context, step func(context.Context, pipeline.Run) pipeline.Run) {
	run, err := s.store.Checkout(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	next := run
	defer func() { s.store.Checkin(next) }()
	next = step(context.WithoutCancel(c.Request.Context()), run)
	c.JSON(http.StatusOK, viewOf(next))
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.store.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDocument(c *gin.Context) {
	run, ok := s.store.Get(c.Param("id"))
	if !ok {
		writeError(c, errNotFound("run not found"))
		return
	}
	if run.Document == nil {
		writeError(c, errConflict("document not generated yet"))
		return
	}
	format, err := document.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, errValidation(err.Error()))
		return
	}

	var body []byte
	switch format {
	case document.FormatText:
		body = []byte(document.RenderText(*run.Document))
	case document.FormatMarkdown:
		body = []byte(document.RenderMarkdown(*run.Document))
	case document.FormatHTML:
		out, err := document.RenderHTML(*run.Document)
		if err != nil {
			writeError(c, err)
			return
		}
		body = []byte(out)
	case document.FormatPDF:
		if s.pdf == nil {
			writeError(c, newError(CodeUnavailable, "pdf rendering is not configured", false))
			return
		}
		out, err := s.pdf.Render(c.Request.Context(), *run.Document)
		if err != nil {
			s.logger.Warn("pdf_render_failed", zap.String("document_id", run.Document.ID), zap.Error(err))
			writeError(c, newError(CodeUnavailable, "pdf rendering failed", true))
			return
		}
		body = out
	}
	c.Header("Content-Disposition", `attachment; filename="`+run.Document.ID+format.Extension()+`"`)
	c.Data(http.StatusOK, format.ContentType(), body)
}

func (s *Server) handleLedgerChain(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, newError(CodeUnavailable, "ledger is not configured", false))
		return
	}
	if err := s.ledger.VerifyChain(c.Request.Context()); err != nil {
		s.logger.Error("ledger_chain_broken", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true, "valid": false, "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "valid": true})
}

func (s *Server) handleLedger(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, newError(CodeUnavailable, "ledger is not configured", false))
		return
	}
	entry, err := s.ledger.Verify(c.Request.Context(), c.Param("hash"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(c, errNotFound("hash not recorded"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"entry":        entry,
		"explorer_url": patent.ExplorerURL(entry.TransactionHash),
	})
}

type runView struct {
	ID          string                 `json:"id"`
	Stage       pipeline.Stage         `json:"stage"`
	Status      pipeline.Status        `json:"status"`
	Error       string                 `json:"error,omitempty"`
	Finished    bool                   `json:"finished"`
	Stages      []pipeline.StageStatus `json:"stages"`
	References  int                    `json:"references"`
	Assessment  *patent.Assessment     `json:"assessment,omitempty"`
	DocumentID  string                 `json:"document_id,omitempty"`
	Recording   *patent.Recording      `json:"recording,omitempty"`
	ExplorerURL string                 `json:"explorer_url,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func viewOf(run pipeline.Run) runView {
	cur := pipeline.CurrentStageStatus(run)
	v := runView{
		ID:         run.ID,
		Stage:      run.Stage,
		Status:     cur.Status,
		Error:      cur.Error,
		Finished:   run.Finished(),
		Assessment: run.Assessment,
		Recording:  run.Recording,
		CreatedAt:  run.CreatedAt,
	}
	for _, st := range pipeline.Stages {
		v.Stages = append(v.Stages, run.State(st))
	}
	if run.Research != nil {
		v.References = len(run.Research.Set)
	}
	if run.Document != nil {
		v.DocumentID = run.Document.ID
	}
	if run.Recording != nil {
		v.ExplorerURL = run.Recording.ExplorerURL()
	}
	return v
}
