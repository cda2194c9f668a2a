package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/joelkehle/inventavault/internal/pipeline"
	"github.com/joelkehle/inventavault/internal/sqlitedb"
)

var (
	ErrNotFound    = errors.New("document hash not recorded")
	ErrInvalidHash = errors.New("document hash must be 0x followed by 64 hex characters")
)

// genesis is the previous transaction of block 1.
const genesis = "0x0000000000000000000000000000000000000000000000000000000000000000"

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	block_number  INTEGER PRIMARY KEY,
	document_hash TEXT NOT NULL UNIQUE,
	tx_hash       TEXT NOT NULL UNIQUE,
	prev_tx       TEXT NOT NULL,
	recorded_at   TEXT NOT NULL
);
`

type entryRow struct {
	BlockNumber  int64  `db:"block_number"`
	DocumentHash string `db:"document_hash"`
	TxHash       string `db:"tx_hash"`
	PrevTx       string `db:"prev_tx"`
	RecordedAt   string `db:"recorded_at"`
}

func (r entryRow) entry() (pipeline.LedgerEntry, error) {
	at, err := time.Parse(time.RFC3339Nano, r.RecordedAt)
	if err != nil {
		return pipeline.LedgerEntry{}, fmt.Errorf("block %d: bad recorded_at %q: %w", r.BlockNumber, r.RecordedAt, err)
	}
	return pipeline.LedgerEntry{
		DocumentHash:    r.DocumentHash,
		TransactionHash: r.TxHash,
		BlockNumber:     uint64(r.BlockNumber),
		RecordedAt:      at,
	}, nil
}

// SQLiteLedger is an append-only hash chain of recorded document hashes. Each
// entry's transaction hash commits to the previous one, so rewriting history
// breaks Verify for every later block.
type SQLiteLedger struct {
	db  *sqlx.DB
	mu  sync.Mutex
	now func() time.Time
}

func Open(path string) (*SQLiteLedger, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return &SQLiteLedger{db: db, now: time.Now}, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Record appends documentHash. Recording a hash twice returns the original
// entry.
func (l *SQLiteLedger) Record(ctx context.Context, documentHash string) (pipeline.LedgerEntry, error) {
	documentHash = strings.ToLower(strings.TrimSpace(documentHash))
	if !validHash(documentHash) {
		return pipeline.LedgerEntry{}, ErrInvalidHash
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return pipeline.LedgerEntry{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existing entryRow
	err = tx.GetContext(ctx, &existing, `SELECT * FROM ledger_entries WHERE document_hash = ?`, documentHash)
	if err == nil {
		return existing.entry()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return pipeline.LedgerEntry{}, fmt.Errorf("lookup hash: %w", err)
	}

	var head entryRow
	prevTx := genesis
	var block int64 = 1
	err = tx.GetContext(ctx, &head, `SELECT * FROM ledger_entries ORDER BY block_number DESC LIMIT 1`)
	switch {
	case err == nil:
		prevTx = head.TxHash
		block = head.BlockNumber + 1
	case !errors.Is(err, sql.ErrNoRows):
		return pipeline.LedgerEntry{}, fmt.Errorf("read head: %w", err)
	}

	row := entryRow{
		BlockNumber:  block,
		DocumentHash: documentHash,
		TxHash:       chainHash(prevTx, documentHash, block),
		PrevTx:       prevTx,
		RecordedAt:   l.now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO ledger_entries (block_number, document_hash, tx_hash, prev_tx, recorded_at)
		VALUES (:block_number, :document_hash, :tx_hash, :prev_tx, :recorded_at)`, row); err != nil {
		return pipeline.LedgerEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return pipeline.LedgerEntry{}, fmt.Errorf("commit: %w", err)
	}
	return row.entry()
}

// Verify looks up a recorded hash.
func (l *SQLiteLedger) Verify(ctx context.Context, documentHash string) (pipeline.LedgerEntry, error) {
	var row entryRow
	err := l.db.GetContext(ctx, &row, `SELECT * FROM ledger_entries WHERE document_hash = ?`, strings.ToLower(strings.TrimSpace(documentHash)))
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return pipeline.LedgerEntry{}, fmt.Errorf("lookup hash: %w", err)
	}
	return row.entry()
}

// VerifyChain recomputes every transaction hash from genesis.
func (l *SQLiteLedger) VerifyChain(ctx context.Context) error {
	var rows []entryRow
	if err := l.db.SelectContext(ctx, &rows, `SELECT * FROM ledger_entries ORDER BY block_number`); err != nil {
		return fmt.Errorf("read chain: %w", err)
	}
	prev := genesis
	for i, r := range rows {
		if r.BlockNumber != int64(i+1) {
			return fmt.Errorf("block %d: expected block number %d", r.BlockNumber, i+1)
		}
		if r.PrevTx != prev {
			return fmt.Errorf("block %d: previous transaction mismatch", r.BlockNumber)
		}
		if want := chainHash(prev, r.DocumentHash, r.BlockNumber); r.TxHash != want {
			return fmt.Errorf("block %d: transaction hash mismatch", r.BlockNumber)
		}
		prev = r.TxHash
	}
	return nil
}

func chainHash(prevTx, documentHash string, block int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", prevTx, documentHash, block)))
	return "0x" + hex.EncodeToString(sum[:])
}

func validHash(h string) bool {
	if len(h) != 66 || !strings.HasPrefix(h, "0x") {
		return false
	}
	_, err := hex.DecodeString(h[2:])
	return err == nil
}
