package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/assessment"
	"github.com/joelkehle/inventavault/internal/document"
	"github.com/joelkehle/inventavault/internal/logging"
	"github.com/joelkehle/inventavault/internal/metrics"
	"github.com/joelkehle/inventavault/internal/patent"
	"github.com/joelkehle/inventavault/internal/priorartsearch"
)

const DefaultCallTimeout = 60 * time.Second

var (
	ErrAllLookupsFailed = errors.New("every prior-art lookup failed")
	ErrEmptySignature   = errors.New("signer returned an empty signature")
)

var tracer = otel.Tracer("github.com/joelkehle/inventavault/internal/pipeline")

type Config struct {
	Researcher Researcher
	Lookups    []priorartsearch.SourceLookup
	Payments   PaymentProcessor
	Signer     DocumentSigner
	Ledger     LedgerRecorder
	Fee        Fee
	// CallTimeout bounds each payment, signing and ledger call.
	CallTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Machine drives runs through the stages. It holds no run state of its own.
type Machine struct {
	cfg    Config
	logger *zap.Logger
}

func NewMachine(cfg Config) (*Machine, error) {
	var missing []string
	if cfg.Researcher == nil {
		missing = append(missing, "researcher")
	}
	if cfg.Payments == nil {
		missing = append(missing, "payment processor")
	}
	if cfg.Signer == nil {
		missing = append(missing, "signer")
	}
	if cfg.Ledger == nil {
		missing = append(missing, "ledger")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %s", strings.Join(missing, ", "))
	}
	if strings.TrimSpace(cfg.Fee.Amount) == "" || strings.TrimSpace(cfg.Fee.Currency) == "" {
		return nil, errors.New("pipeline: fee amount and currency are required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{cfg: cfg, logger: logging.OrNop(cfg.Logger).Named("pipeline")}, nil
}

// SubmitIdea validates idea and starts a run whose submission stage is done.
func (m *Machine) SubmitIdea(idea patent.Idea) (Run, error) {
	if err := idea.Validate(); err != nil {
		return Run{}, err
	}
	now := m.cfg.Now()
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = now
	}
	run := Run{
		ID:        uuid.NewString(),
		Stage:     StageSubmission,
		Stages:    make(map[Stage]StageStatus, len(Stages)),
		Idea:      idea,
		CreatedAt: now,
	}
	for _, s := range Stages {
		run.Stages[s] = StageStatus{Stage: s, Status: StatusPending}
	}
	run.Stages[StageSubmission] = StageStatus{
		Stage:      StageSubmission,
		Status:     StatusCompleted,
		Attempts:   1,
		StartedAt:  &now,
		FinishedAt: &now,
	}
	m.logger.Info("run_submitted", zap.String("run_id", run.ID), zap.String("title", idea.Title))
	return run, nil
}

// Advance moves run to the next stage and performs that stage's work. It is a
// no-op when the current stage has not produced its output yet.
func (m *Machine) Advance(ctx context.Context, run Run) Run {
	if !hasOutput(run, run.Stage) {
		m.logger.Debug("advance_skipped",
			zap.String("run_id", run.ID),
			zap.String("stage", string(run.Stage)),
			zap.String("status", string(CurrentStageStatus(run).Status)))
		return run
	}
	next, ok := run.Stage.next()
	if !ok {
		return run
	}
	out := run.clone()
	out.Stage = next
	return m.enter(ctx, out)
}

// Retry re-runs the current stage when it failed or never produced output.
// Outputs of earlier stages are kept.
func (m *Machine) Retry(ctx context.Context, run Run) Run {
	if run.Stage == StageSubmission || run.Stage == StageCompleted {
		return run
	}
	if CurrentStageStatus(run).Status != StatusError && hasOutput(run, run.Stage) {
		return run
	}
	m.logger.Info("stage_retry", zap.String("run_id", run.ID), zap.String("stage", string(run.Stage)))
	return m.enter(ctx, run.clone())
}

func hasOutput(run Run, s Stage) bool {
	if run.State(s).Status != StatusCompleted {
		return false
	}
	switch s {
	case StageSubmission:
		return true
	case StageResearch:
		return run.Research != nil
	case StageGeneration:
		return run.Document != nil && run.Assessment != nil
	case StageBlockchain:
		return run.Recording != nil
	default:
		return false
	}
}

// enter runs the entry action of run.Stage on a run the caller owns.
func (m *Machine) enter(ctx context.Context, run Run) Run {
	stage := run.Stage
	ctx, span := tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID))

	started := m.cfg.Now()
	st := run.State(stage)
	st.Status = StatusProcessing
	st.Error = ""
	st.Attempts++
	st.StartedAt = &started
	st.FinishedAt = nil
	run.Stages[stage] = st

	var err error
	if err = ctx.Err(); err == nil {
		switch stage {
		case StageResearch:
			err = m.research(ctx, &run)
		case StageGeneration:
			err = m.generate(&run)
		case StageBlockchain:
			err = m.record(ctx, &run)
		}
	}

	finished := m.cfg.Now()
	st = run.State(stage)
	st.FinishedAt = &finished
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			err = &StageError{Stage: stage, Err: err}
		}
		st.Status = StatusError
		st.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("stage_error",
			zap.String("run_id", run.ID),
			zap.String("stage", string(stage)),
			zap.Int("attempt", st.Attempts),
			zap.Error(err))
	} else {
		st.Status = StatusCompleted
		m.logger.Info("stage_completed",
			zap.String("run_id", run.ID),
			zap.String("stage", string(stage)),
			zap.Duration("elapsed", finished.Sub(started)))
	}
	run.Stages[stage] = st
	m.cfg.Metrics.ObserveStage(string(stage), string(st.Status), finished.Sub(started))
	return run
}

func (m *Machine) research(ctx context.Context, run *Run) error {
	res := m.cfg.Researcher.Aggregate(ctx, run.Idea, m.cfg.Lookups)
	st := run.State(StageResearch)
	st.Warnings = append([]priorartsearch.Warning(nil), res.Warnings...)
	run.Stages[StageResearch] = st
	if res.AllFailed() {
		run.Research = nil
		return &StageError{Stage: StageResearch, Step: "lookup", Err: fmt.Errorf("%w (%d attempted)", ErrAllLookupsFailed, res.Attempted)}
	}
	run.Research = &res
	return nil
}

func (m *Machine) generate(run *Run) error {
	if run.Research == nil {
		return &StageError{Stage: StageGeneration, Err: errors.New("no research output")}
	}
	a := assessment.Assess(run.Research.Set)
	doc := document.Assemble(document.NewDocumentRef(m.cfg.Now()), run.Idea, run.Research.Set, a)
	run.Assessment = &a
	run.Document = &doc
	return nil
}

// record pays, signs and writes the document hash to the ledger. Sub-steps
// that already succeeded on an earlier attempt are not repeated.
func (m *Machine) record(ctx context.Context, run *Run) error {
	if run.Document == nil {
		return &StageError{Stage: StageBlockchain, Err: errors.New("no document to record")}
	}

	if run.Payment == nil {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		receipt, err := m.cfg.Payments.Charge(callCtx, m.cfg.Fee.Amount, m.cfg.Fee.Currency)
		cancel()
		if err != nil {
			return &StageError{Stage: StageBlockchain, Step: "payment", Err: err}
		}
		run.Payment = &receipt
		m.logger.Info("payment_accepted", zap.String("run_id", run.ID), zap.String("reference", receipt.Reference))
	}

	if run.Signature == "" {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		sig, err := m.cfg.Signer.Sign(callCtx, document.SigningMessage(*run.Document))
		cancel()
		if err == nil && strings.TrimSpace(sig) == "" {
			err = ErrEmptySignature
		}
		if err != nil {
			return &StageError{Stage: StageBlockchain, Step: "signing", Err: err}
		}
		run.Signature = sig
	}

	hash := document.DocumentHash(*run.Document, run.Signature)
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	entry, err := m.cfg.Ledger.Record(callCtx, hash)
	cancel()
	if err != nil {
		return &StageError{Stage: StageBlockchain, Step: "recording", Err: err}
	}

	rec := patent.Recording{
		DocumentHash:    hash,
		TransactionHash: entry.TransactionHash,
		BlockNumber:     entry.BlockNumber,
		Signature:       run.Signature,
		PaymentRef:      run.Payment.Reference,
		Amount:          run.Payment.Amount,
		Currency:        run.Payment.Currency,
		RecordedAt:      entry.RecordedAt,
	}
	doc := run.Document.WithRecording(rec)
	run.Document = &doc
	run.Recording = &rec
	m.logger.Info("document_recorded",
		zap.String("run_id", run.ID),
		zap.String("document_id", doc.ID),
		zap.String("tx", rec.TransactionHash),
		zap.Uint64("block", rec.BlockNumber))
	return nil
}
