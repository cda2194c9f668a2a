package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/joelkehle/inventavault/internal/patent"
	"github.com/joelkehle/inventavault/internal/priorartsearch"
)

type Stage string

const (
	StageSubmission Stage = "submission"
	StageResearch   Stage = "research"
	StageGeneration Stage = "generation"
	StageBlockchain Stage = "blockchain"
	StageCompleted  Stage = "completed"
)

// Stages lists every stage in the only order a run may visit them.
var Stages = []Stage{StageSubmission, StageResearch, StageGeneration, StageBlockchain, StageCompleted}

func (s Stage) next() (Stage, bool) {
	for i, st := range Stages {
		if st == s && i+1 < len(Stages) {
			return Stages[i+1], true
		}
	}
	return "", false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

type StageStatus struct {
	Stage      Stage                    `json:"stage"`
	Status     Status                   `json:"status"`
	Error      string                   `json:"error,omitempty"`
	Warnings   []priorartsearch.Warning `json:"warnings,omitempty"`
	Attempts   int                      `json:"attempts"`
	StartedAt  *time.Time               `json:"started_at,omitempty"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

// Run is one idea's trip through the stages. Runs are values: every
// transition returns a new Run and leaves its input untouched.
type Run struct {
	ID         string                   `json:"id"`
	Stage      Stage                    `json:"stage"`
	Stages     map[Stage]StageStatus    `json:"stages"`
	Idea       patent.Idea              `json:"idea"`
	Research   *priorartsearch.Research `json:"research,omitempty"`
	Assessment *patent.Assessment       `json:"assessment,omitempty"`
	Document   *patent.Document         `json:"document,omitempty"`
	Payment    *PaymentReceipt          `json:"payment,omitempty"`
	Signature  string                   `json:"signature,omitempty"`
	Recording  *patent.Recording        `json:"recording,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

func (r Run) State(s Stage) StageStatus {
	if st, ok := r.Stages[s]; ok {
		return st
	}
	return StageStatus{Stage: s, Status: StatusPending}
}

// CurrentStageStatus reports the state of the stage the run is on.
func CurrentStageStatus(r Run) StageStatus {
	return r.State(r.Stage)
}

// Finished is true once the run reached the terminal stage.
func (r Run) Finished() bool {
	return r.Stage == StageCompleted && r.State(StageCompleted).Status == StatusCompleted
}

func (r Run) clone() Run {
	out := r
	out.Stages = make(map[Stage]StageStatus, len(r.Stages))
	for k, v := range r.Stages {
		v.Warnings = append([]priorartsearch.Warning(nil), v.Warnings...)
		out.Stages[k] = v
	}
	if r.Research != nil {
		res := *r.Research
		res.Set = r.Research.Set.Clone()
		res.Warnings = append([]priorartsearch.Warning(nil), r.Research.Warnings...)
		res.Queries = append([]string(nil), r.Research.Queries...)
		out.Research = &res
	}
	if r.Assessment != nil {
		a := *r.Assessment
		a.Recommendations = append([]string(nil), r.Assessment.Recommendations...)
		out.Assessment = &a
	}
	if r.Document != nil {
		doc := *r.Document
		doc.Claims = append([]string(nil), r.Document.Claims...)
		doc.NextSteps = append([]string(nil), r.Document.NextSteps...)
		doc.PriorArt = r.Document.PriorArt.Clone()
		if r.Document.Recording != nil {
			rec := *r.Document.Recording
			doc.Recording = &rec
		}
		out.Document = &doc
	}
	if r.Payment != nil {
		p := *r.Payment
		out.Payment = &p
	}
	if r.Recording != nil {
		rec := *r.Recording
		out.Recording = &rec
	}
	return out
}

// Fee is what recording a document costs.
type Fee struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type PaymentReceipt struct {
	Reference string    `json:"reference"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	PaidAt    time.Time `json:"paid_at"`
}

type LedgerEntry struct {
	DocumentHash    string    `json:"document_hash"`
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type PaymentProcessor interface {
	Charge(ctx context.Context, amount, currency string) (PaymentReceipt, error)
}

type DocumentSigner interface {
	Sign(ctx context.Context, message string) (string, error)
}

type LedgerRecorder interface {
	Record(ctx context.Context, documentHash string) (LedgerEntry, error)
}

// Researcher turns an idea into ranked prior art.
type Researcher interface {
	Aggregate(ctx context.Context, idea patent.Idea, lookups []priorartsearch.SourceLookup) priorartsearch.Research
}

// StageError is recorded on a stage whose entry action failed. Step names the
// sub-step for stages that have several.
type StageError struct {
	Stage Stage
	Step  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s %s failed: %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
