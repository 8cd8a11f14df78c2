// Package ledger is the chain-of-custody store for integrity seals.
//
// Security model:
//  1. File permissions: 0600 (owner read/write only)
//  2. Every record carries an HMAC under a key derived from the ledger master key
//  3. Append-only: records are never updated after insertion
//  4. Chain linking: every record commits to the previous record's hash
package ledger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"verum/internal/metrics"
	"verum/internal/seal"
	"verum/internal/security"
)

// Errors
var (
	ErrNotFound            = errors.New("ledger: record not found")
	ErrIntegrity           = errors.New("ledger: integrity verification failed")
	ErrIntegrityCompromise = errors.New("ledger: integrity compromised, refusing to write")
)

const hmacLabel = "ledger-hmac"

const schema = `
CREATE TABLE IF NOT EXISTS integrity (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    chain_hash    BLOB NOT NULL,
    record_count  INTEGER NOT NULL DEFAULT 0,
    updated_ns    INTEGER,
    hmac          BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS seals (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL UNIQUE,
    case_label     TEXT NOT NULL,
    content_hash   TEXT NOT NULL,
    recorded_ns    INTEGER NOT NULL,
    seal_json      BLOB NOT NULL,
    previous_hash  BLOB NOT NULL,
    record_hash    BLOB NOT NULL UNIQUE,
    hmac           BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seals_case ON seals(case_label, seq);
CREATE INDEX IF NOT EXISTS idx_seals_content ON seals(content_hash);
`

// Record is one sealed piece of evidence in the ledger.
type Record struct {
	Seq          int64      `json:"seq"`
	ID           string     `json:"id"`
	CaseLabel    string     `json:"case_label"`
	ContentHash  string     `json:"content_hash"`
	RecordedAt   time.Time  `json:"recorded_at"`
	Seal         *seal.Seal `json:"seal"`
	PreviousHash string     `json:"previous_hash"`
	RecordHash   string     `json:"record_hash"`
}

// Stats summarizes the ledger.
type Stats struct {
	Records     int64  `json:"records"`
	Cases       int64  `json:"cases"`
	ChainHash   string `json:"chain_hash"`
	IntegrityOK bool   `json:"integrity_ok"`
}

// Ledger is an append-only, hash-chained seal store on SQLite.
type Ledger struct {
	db          *sql.DB
	hmacKey     []byte
	lastHash    [32]byte
	count       int64
	integrityOK bool
	mu          sync.RWMutex

	now     func() time.Time
	newID   func() string
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics records ledger operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides the clock used for recorded_at.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open opens or creates the ledger at path. The per-record HMAC key is
// derived from masterKey. An existing ledger is verified on open; if that
// fails the ledger is still returned for read access, together with an
// error wrapping ErrIntegrity.
func Open(ctx context.Context, path string, masterKey []byte, opts ...Option) (*Ledger, error) {
	hmacKey, err := security.DeriveKeyWithLabel(masterKey, hmacLabel, security.RecommendedKeySize)
	if err != nil {
		return nil, fmt.Errorf("derive ledger key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	l := &Ledger{
		db:      db,
		hmacKey: hmacKey,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM integrity`).Scan(&exists); err != nil {
		db.Close()
		return nil, fmt.Errorf("read integrity record: %w", err)
	}
	if exists == 0 {
		if err := l.initializeIntegrity(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize integrity: %w", err)
		}
		l.integrityOK = true
		return l, nil
	}

	if _, err := l.Verify(ctx); err != nil {
		return l, err
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// IntegrityOK reports whether the last verification passed.
func (l *Ledger) IntegrityOK() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.integrityOK
}

func (l *Ledger) initializeIntegrity(ctx context.Context) error {
	var zero [32]byte
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO integrity (id, chain_hash, record_count, updated_ns, hmac)
		VALUES (1, ?, 0, ?, ?)`,
		zero[:], l.now().UnixNano(), l.integrityMAC(zero, 0),
	)
	return err
}

// Append seals s into the ledger and returns the stored record.
func (l *Ledger) Append(ctx context.Context, s *seal.Seal) (rec *Record, err error) {
	defer func() { l.metrics.RecordLedgerOp("append", err) }()

	if s == nil {
		return nil, seal.ErrNilSeal
	}
	sealJSON, err := seal.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode seal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.integrityOK {
		return nil, ErrIntegrityCompromise
	}

	rec = &Record{
		ID:           l.newID(),
		CaseLabel:    s.CaseLabel,
		ContentHash:  s.ContentHash,
		RecordedAt:   l.now().UTC(),
		Seal:         s,
		PreviousHash: hex.EncodeToString(l.lastHash[:]),
	}
	recorded := rec.RecordedAt.UnixNano()
	hash := recordHash(rec.ID, rec.CaseLabel, rec.ContentHash, recorded, sealJSON, l.lastHash[:])
	mac := l.recordMAC(hash)
	rec.RecordHash = hex.EncodeToString(hash[:])

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO seals (id, case_label, content_hash, recorded_ns, seal_json, previous_hash, record_hash, hmac)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CaseLabel, rec.ContentHash, recorded, sealJSON, l.lastHash[:], hash[:], mac,
	)
	if err != nil {
		return nil, fmt.Errorf("insert seal: %w", err)
	}
	rec.Seq, _ = result.LastInsertId()

	count := l.count + 1
	if _, err := tx.ExecContext(ctx, `UPDATE integrity SET chain_hash = ?, record_count = ?, updated_ns = ?, hmac = ? WHERE id = 1`,
		hash[:], count, recorded, l.integrityMAC(hash, count)); err != nil {
		return nil, fmt.Errorf("update integrity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	l.lastHash = hash
	l.count = count
	l.metrics.SetLedgerRecords(count)
	return rec, nil
}

const selectRecord = `SELECT seq, id, case_label, content_hash, recorded_ns, seal_json, previous_hash, record_hash FROM seals`

// Get returns the record with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (rec *Record, err error) {
	defer func() { l.metrics.RecordLedgerOp("get", ignoreNotFound(err)) }()

	rows, err := l.db.QueryContext(ctx, selectRecord+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query seal: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// ListByCase returns every record for a case in insertion order.
func (l *Ledger) ListByCase(ctx context.Context, caseLabel string) (records []Record, err error) {
	defer func() { l.metrics.RecordLedgerOp("list", err) }()

	rows, err := l.db.QueryContext(ctx, selectRecord+` WHERE case_label = ? ORDER BY seq ASC`, caseLabel)
	if err != nil {
		return nil, fmt.Errorf("query case: %w", err)
	}
	return scanRecords(rows)
}

// FindByContentHash returns every record sealing the given content hash.
func (l *Ledger) FindByContentHash(ctx context.Context, contentHash string) (records []Record, err error) {
	defer func() { l.metrics.RecordLedgerOp("find", err) }()

	rows, err := l.db.QueryContext(ctx, selectRecord+` WHERE content_hash = ? ORDER BY seq ASC`, contentHash)
	if err != nil {
		return nil, fmt.Errorf("query content hash: %w", err)
	}
	return scanRecords(rows)
}

// Stats returns ledger statistics.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	l.mu.RLock()
	st := &Stats{
		Records:     l.count,
		ChainHash:   hex.EncodeToString(l.lastHash[:]),
		IntegrityOK: l.integrityOK,
	}
	l.mu.RUnlock()

	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT case_label) FROM seals`).Scan(&st.Cases); err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}
	return st, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var recordedNs int64
		var sealJSON, previousHash, hash []byte
		if err := rows.Scan(&r.Seq, &r.ID, &r.CaseLabel, &r.ContentHash, &recordedNs, &sealJSON, &previousHash, &hash); err != nil {
			return nil, fmt.Errorf("scan seal: %w", err)
		}
		s, err := seal.Decode(sealJSON)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		r.Seal = s
		r.RecordedAt = time.Unix(0, recordedNs).UTC()
		r.PreviousHash = hex.EncodeToString(previousHash)
		r.RecordHash = hex.EncodeToString(hash)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seals: %w", err)
	}
	return records, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (l *Ledger) integrityMAC(chainHash [32]byte, count int64) []byte {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte("verum-ledger-integrity-v1"))
	mac.Write(chainHash[:])
	mac.Write(int64Bytes(count))
	return mac.Sum(nil)
}

func (l *Ledger) recordMAC(hash [32]byte) []byte {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte("verum-ledger-record-v1"))
	mac.Write(hash[:])
	return mac.Sum(nil)
}

// recordHash commits to every stored column. Variable-length fields are
// length-prefixed.
func recordHash(id, caseLabel, contentHash string, recordedNs int64, sealJSON, previous []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte("verum-ledger-v1"))
	for _, field := range [][]byte{[]byte(id), []byte(caseLabel), []byte(contentHash), sealJSON} {
		h.Write(int64Bytes(int64(len(field))))
		h.Write(field)
	}
	h.Write(int64Bytes(recordedNs))
	h.Write(previous)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func int64Bytes(n int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return buf[:]
}
