package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Verification is the outcome of a full-chain check.
type Verification struct {
	Records    int64     `json:"records"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Verify walks the whole chain and checks every record's hash, HMAC and
// link, then the integrity row. On failure the ledger refuses further
// appends.
func (l *Ledger) Verify(ctx context.Context) (v *Verification, err error) {
	defer func() { l.metrics.RecordLedgerOp("verify", err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	last, count, err := l.verifyChain(ctx)
	if err != nil {
		l.integrityOK = false
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	l.lastHash = last
	l.count = count
	l.integrityOK = true
	l.metrics.SetLedgerRecords(count)
	return &Verification{Records: count, VerifiedAt: l.now().UTC()}, nil
}

func (l *Ledger) verifyChain(ctx context.Context) ([32]byte, int64, error) {
	var last [32]byte

	var chainHash, storedMAC []byte
	var recordCount int64
	err := l.db.QueryRowContext(ctx, `SELECT chain_hash, record_count, hmac FROM integrity WHERE id = 1`).
		Scan(&chainHash, &recordCount, &storedMAC)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return last, 0, errors.New("integrity record missing")
		}
		return last, 0, fmt.Errorf("read integrity record: %w", err)
	}

	var expected [32]byte
	copy(expected[:], chainHash)
	if !hmac.Equal(storedMAC, l.integrityMAC(expected, recordCount)) {
		return last, 0, errors.New("integrity record HMAC mismatch")
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, id, case_label, content_hash, recorded_ns, seal_json, previous_hash, record_hash, hmac
		FROM seals ORDER BY seq ASC`)
	if err != nil {
		return last, 0, fmt.Errorf("query seals: %w", err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		var seq, recordedNs int64
		var id, caseLabel, contentHash string
		var sealJSON, previous, stored, mac []byte
		if err := rows.Scan(&seq, &id, &caseLabel, &contentHash, &recordedNs, &sealJSON, &previous, &stored, &mac); err != nil {
			return last, 0, fmt.Errorf("scan seal %d: %w", seq, err)
		}

		if !bytes.Equal(previous, last[:]) {
			return last, 0, fmt.Errorf("chain break at record %d", seq)
		}
		computed := recordHash(id, caseLabel, contentHash, recordedNs, sealJSON, previous)
		if !bytes.Equal(stored, computed[:]) {
			return last, 0, fmt.Errorf("record %d hash mismatch", seq)
		}
		if !hmac.Equal(mac, l.recordMAC(computed)) {
			return last, 0, fmt.Errorf("record %d HMAC mismatch", seq)
		}

		last = computed
		count++
	}
	if err := rows.Err(); err != nil {
		return last, 0, fmt.Errorf("iterate seals: %w", err)
	}

	if count != recordCount {
		return last, 0, fmt.Errorf("record count mismatch: expected %d, found %d", recordCount, count)
	}
	if !bytes.Equal(chainHash, last[:]) {
		return last, 0, errors.New("chain hash mismatch")
	}
	return last, count, nil
}
