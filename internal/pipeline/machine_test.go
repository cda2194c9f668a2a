package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/inventavault/internal/patent"
	"github.com/joelkehle/inventavault/internal/priorartsearch"
)

func smartValve() patent.Idea {
	return patent.Idea{
		Title:          "Smart Valve",
		Description:    "A valve that reports its own leaks",
		TechnicalField: "Fluid Control",
		ProblemSolved:  "leak detection",
		Solution:       "pressure sensor array",
		Advantages:     "early warning",
		SubmitterName:  "Ada Inventor",
		SubmitterEmail: "ada@example.com",
	}
}

type fakeLookup struct {
	mu    sync.Mutex
	name  string
	err   error
	cands []priorartsearch.RawCandidate
	calls int
}

func (f *fakeLookup) Name() string { return f.name }

func (f *fakeLookup) Lookup(context.Context, string) ([]priorartsearch.RawCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cands, nil
}

func (f *fakeLookup) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakePayments struct {
	errs  []error
	calls int
}

func (f *fakePayments) Charge(_ context.Context, amount, currency string) (PaymentReceipt, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return PaymentReceipt{}, err
		}
	}
	return PaymentReceipt{Reference: fmt.Sprintf("pay-%d", f.calls), Amount: amount, Currency: currency}, nil
}

type fakeSigner struct {
	sig      string
	err      error
	calls    int
	messages []string
}

func (f *fakeSigner) Sign(_ context.Context, message string) (string, error) {
	f.calls++
	f.messages = append(f.messages, message)
	return f.sig, f.err
}

type fakeLedger struct {
	errs   []error
	calls  int
	hashes []string
}

func (f *fakeLedger) Record(_ context.Context, hash string) (LedgerEntry, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return LedgerEntry{}, err
		}
	}
	f.hashes = append(f.hashes, hash)
	return LedgerEntry{
		DocumentHash:    hash,
		TransactionHash: "0xtx" + fmt.Sprint(f.calls),
		BlockNumber:     uint64(f.calls),
		RecordedAt:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}, nil
}

type harness struct {
	machine  *Machine
	payments *fakePayments
	signer   *fakeSigner
	ledger   *fakeLedger
}

func newHarness(t *testing.T, lookups ...priorartsearch.SourceLookup) *harness {
	t.Helper()
	h := &harness{
		payments: &fakePayments{},
		signer:   &fakeSigner{sig: "0xsig"},
		ledger:   &fakeLedger{},
	}
	agg := priorartsearch.NewAggregator(nil, nil)
	agg.Timeout = time.Second
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, err := NewMachine(Config{
		Researcher: agg,
		Lookups:    lookups,
		Payments:   h.payments,
		Signer:     h.signer,
		Ledger:     h.ledger,
		Fee:        Fee{Amount: "0.001", Currency: "ETH"},
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	h.machine = m
	return h
}

func TestNewMachineRequiresCollaborators(t *testing.T) {
	_, err := NewMachine(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "researcher")
	assert.Contains(t, err.Error(), "ledger")
}

func TestSubmitIdeaRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	idea := smartValve()
	idea.SubmitterEmail = "nope"
	_, err := h.machine.SubmitIdea(idea)
	assert.ErrorIs(t, err, patent.ErrInvalidIdea)
}

func TestSubmitIdeaStartsRun(t *testing.T) {
	h := newHarness(t)
	run, err := h.machine.SubmitIdea(smartValve())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StageSubmission, run.Stage)
	assert.Equal(t, StatusCompleted, CurrentStageStatus(run).Status)
	assert.Equal(t, StatusPending, run.State(StageResearch).Status)
	assert.False(t, run.Idea.CreatedAt.IsZero())
}

func TestSmartValveEndToEndWithoutLookups(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, err := h.machine.SubmitIdea(smartValve())
	require.NoError(t, err)

	run = h.machine.Advance(ctx, run)
	require.Equal(t, StageResearch, run.Stage)
	require.Equal(t, StatusCompleted, CurrentStageStatus(run).Status)
	require.NotNil(t, run.Research)
	assert.True(t, run.Research.Set.IsEmpty())

	run = h.machine.Advance(ctx, run)
	require.Equal(t, StageGeneration, run.Stage)
	require.NotNil(t, run.Document)
	assert.Equal(t, 85, run.Assessment.Score)
	assert.Equal(t, patent.TierHigh, run.Assessment.Tier)
	assert.Contains(t, run.Document.Abstract, "no direct prior art identified")
	assert.Equal(t, patent.StatusCompleted, run.Document.Status)

	run = h.machine.Advance(ctx, run)
	require.Equal(t, StageBlockchain, run.Stage)
	require.Equal(t, StatusCompleted, CurrentStageStatus(run).Status, CurrentStageStatus(run).Error)
	require.NotNil(t, run.Recording)
	assert.Equal(t, patent.StatusBlockchainRecorded, run.Document.Status)
	assert.Equal(t, "0xtx1", run.Recording.TransactionHash)
	assert.Equal(t, "https://basescan.org/tx/0xtx1", run.Recording.ExplorerURL())
	assert.Equal(t, "0.001", run.Recording.Amount)
	assert.Equal(t, "ETH", run.Recording.Currency)
	assert.Equal(t, "pay-1", run.Recording.PaymentRef)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, run.Recording.DocumentHash)
	assert.Equal(t, []string{run.Recording.DocumentHash}, h.ledger.hashes)
	require.Len(t, h.signer.messages, 1)
	assert.Contains(t, h.signer.messages[0], run.Document.ID)

	run = h.machine.Advance(ctx, run)
	assert.Equal(t, StageCompleted, run.Stage)
	assert.True(t, run.Finished())

	again := h.machine.Advance(ctx, run)
	assert.Equal(t, run, again)
}

func TestResearchWithLookups(t *testing.T) {
	lookup := &fakeLookup{name: "exa", cands: []priorartsearch.RawCandidate{
		{Title: "Smart valve leak detection", URL: "https://example.com/a", Text: "smart valve leak detection pressure sensor array fluid control patent"},
		{Title: "Bicycle bell", URL: "https://example.com/b", Text: "a bell"},
	}}
	h := newHarness(t, lookup)
	ctx := context.Background()
	run, _ := h.machine.SubmitIdea(smartValve())
	run = h.machine.Advance(ctx, run)

	require.Equal(t, StatusCompleted, CurrentStageStatus(run).Status)
	require.Len(t, run.Research.Set, 2)
	assert.Equal(t, "https://example.com/a", run.Research.Set[0].URL)
	assert.Empty(t, CurrentStageStatus(run).Warnings)

	run = h.machine.Advance(ctx, run)
	assert.Less(t, run.Assessment.Score, 85)
	assert.Contains(t, run.Document.Abstract, "2 related prior art references")
}

func TestAdvanceIsNoOpWithoutOutput(t *testing.T) {
	lookup := &fakeLookup{name: "exa", err: errors.New("boom")}
	h := newHarness(t, lookup)
	ctx := context.Background()
	run, _ := h.machine.SubmitIdea(smartValve())
	run = h.machine.Advance(ctx, run)

	require.Equal(t, StageResearch, run.Stage)
	st := CurrentStageStatus(run)
	require.Equal(t, StatusError, st.Status)
	assert.Contains(t, st.Error, "every prior-art lookup failed")
	assert.NotEmpty(t, st.Warnings)
	assert.Nil(t, run.Research)

	calls := lookup.calls
	same := h.machine.Advance(ctx, run)
	assert.Equal(t, run, same)
	assert.Equal(t, calls, lookup.calls)
	assert.Equal(t, StageResearch, same.Stage)
}

func TestRetryResearchAfterRecovery(t *testing.T) {
	lookup := &fakeLookup{name: "exa", err: errors.New("boom")}
	h := newHarness(t, lookup)
	ctx := context.Background()
	run, _ := h.machine.SubmitIdea(smartValve())
	failed := h.machine.Advance(ctx, run)
	require.Equal(t, StatusError, CurrentStageStatus(failed).Status)

	lookup.setErr(nil)
	retried := h.machine.Retry(ctx, failed)
	st := CurrentStageStatus(retried)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Empty(t, st.Error)
	assert.Equal(t, 2, st.Attempts)
	require.NotNil(t, retried.Research)
	assert.Equal(t, StatusError, CurrentStageStatus(failed).Status)
}

func TestRetryIsNoOpWhenStageSucceeded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, _ := h.machine.SubmitIdea(smartValve())
	run = h.machine.Advance(ctx, run)
	assert.Equal(t, run, h.machine.Retry(ctx, run))

	sub, _ := h.machine.SubmitIdea(smartValve())
	assert.Equal(t, sub, h.machine.Retry(ctx, sub))
}

func toGeneration(t *testing.T, h *harness) Run {
	t.Helper()
	ctx := context.Background()
	run, err := h.machine.SubmitIdea(smartValve())
	require.NoError(t, err)
	run = h.machine.Advance(ctx, run)
	run = h.machine.Advance(ctx, run)
	require.Equal(t, StageGeneration, run.Stage)
	require.Equal(t, StatusCompleted, CurrentStageStatus(run).Status)
	return run
}

func TestPaymentRejectionStaysOnBlockchain(t *testing.T) {
	h := newHarness(t)
	h.payments.errs = []error{errors.New("insufficient funds")}
	ctx := context.Background()
	gen := toGeneration(t, h)

	run := h.machine.Advance(ctx, gen)
	require.Equal(t, StageBlockchain, run.Stage)
	st := CurrentStageStatus(run)
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, "blockchain payment failed: insufficient funds", st.Error)
	assert.Nil(t, run.Recording)
	assert.Equal(t, 0, h.signer.calls)
	require.NotNil(t, run.Document)
	assert.Equal(t, gen.Document.ID, run.Document.ID)

	assert.Equal(t, run, h.machine.Advance(ctx, run))

	run = h.machine.Retry(ctx, run)
	assert.Equal(t, StatusCompleted, CurrentStageStatus(run).Status)
	assert.Equal(t, 2, h.payments.calls)
	require.NotNil(t, run.Recording)
	assert.Equal(t, "pay-2", run.Recording.PaymentRef)
}

func TestRetrySkipsCompletedBlockchainSteps(t *testing.T) {
	h := newHarness(t)
	h.ledger.errs = []error{errors.New("rpc unavailable"), errors.New("rpc unavailable")}
	ctx := context.Background()
	run := h.machine.Advance(ctx, toGeneration(t, h))
	require.Equal(t, StatusError, CurrentStageStatus(run).Status)
	assert.Contains(t, CurrentStageStatus(run).Error, "recording")
	assert.NotNil(t, run.Payment)
	assert.Equal(t, "0xsig", run.Signature)

	run = h.machine.Retry(ctx, run)
	require.Equal(t, StatusError, CurrentStageStatus(run).Status)
	run = h.machine.Retry(ctx, run)
	require.Equal(t, StatusCompleted, CurrentStageStatus(run).Status)

	assert.Equal(t, 1, h.payments.calls)
	assert.Equal(t, 1, h.signer.calls)
	assert.Equal(t, 3, h.ledger.calls)
	assert.Equal(t, 3, CurrentStageStatus(run).Attempts)
}

func TestEmptySignatureIsRejected(t *testing.T) {
	h := newHarness(t)
	h.signer.sig = " "
	run := h.machine.Advance(context.Background(), toGeneration(t, h))
	st := CurrentStageStatus(run)
	assert.Equal(t, StatusError, st.Status)
	assert.Contains(t, st.Error, "signing")
	assert.Empty(t, run.Signature)
	assert.Equal(t, 0, h.ledger.calls)
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gen := toGeneration(t, h)
	snapshotStages := make(map[Stage]StageStatus, len(gen.Stages))
	for k, v := range gen.Stages {
		snapshotStages[k] = v
	}
	docStatus := gen.Document.Status

	next := h.machine.Advance(ctx, gen)
	require.Equal(t, StageBlockchain, next.Stage)

	assert.Equal(t, StageGeneration, gen.Stage)
	assert.Equal(t, snapshotStages, gen.Stages)
	assert.Equal(t, docStatus, gen.Document.Status)
	assert.Nil(t, gen.Recording)
	assert.Nil(t, gen.Document.Recording)
}

func TestCanceledContextFailsStage(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, _ := h.machine.SubmitIdea(smartValve())
	run = h.machine.Advance(ctx, run)
	st := CurrentStageStatus(run)
	assert.Equal(t, StatusError, st.Status)
	assert.Contains(t, st.Error, context.Canceled.Error())

	var se *StageError
	assert.True(t, errors.As(&StageError{Stage: StageResearch, Err: context.Canceled}, &se))
	assert.ErrorIs(t, se, context.Canceled)
}

func TestStagesOnlyMoveForward(t *testing.T) {
	for i, s := range Stages {
		next, ok := s.next()
		if i == len(Stages)-1 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, Stages[i+1], next)
	}
}
