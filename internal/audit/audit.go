// Package audit records the per-request begin/end trail (spec §3, §4.5,
// invariant 4: strict happens-before ordering). Logging follows markcallen's
// slog-field-list convention from internal/auth/audit.go; entries are also
// persisted to sqlite so a completed trail survives process restarts.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcome is the terminal state of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeDenied  Outcome = "denied"
)

// Entry is one row of the audit trail (spec §3).
type Entry struct {
	ID        string
	Timestamp time.Time
	UserID    string
	Action    string
	CodeHash  string
	Outcome   Outcome
	ClientIP  string
	Detail    string
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    user_id TEXT NOT NULL,
    action TEXT NOT NULL,
    code_hash TEXT,
    outcome TEXT NOT NULL,
    client_ip TEXT,
    detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(timestamp);
`

// Log persists audit entries to sqlite and mirrors them to structured logs.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (migrating if needed) the audit log backing store.
func Open(dsn string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying audit schema: %w", err)
	}
	return &Log{db: db, logger: logger}, nil
}

func (l *Log) Close() error { return l.db.Close() }

// HashCode returns the hash stored in place of raw user code (spec §7:
// "never surfaced: full user code from logs").
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Begin records the start of an audited action and returns its id so the
// matching End call can be correlated (invariant 4: begin before end).
func (l *Log) Begin(userID, action, codeHash, clientIP string) string {
	id := uuid.NewString()
	e := Entry{ID: id, Timestamp: time.Now().UTC(), UserID: userID, Action: action, CodeHash: codeHash, Outcome: "", ClientIP: clientIP}
	l.insert(e, "begin")
	return id
}

// End records the terminal outcome of an action started with Begin.
func (l *Log) End(id, userID, action string, outcome Outcome, detail, clientIP string) {
	e := Entry{ID: id, Timestamp: time.Now().UTC(), UserID: userID, Action: action, Outcome: outcome, ClientIP: clientIP, Detail: detail}
	l.insert(e, "end")
}

func (l *Log) insert(e Entry, phase string) {
	rowID := e.ID + ":" + phase
	if _, err := l.db.Exec(`
		INSERT OR REPLACE INTO audit_log (id, timestamp, user_id, action, code_hash, outcome, client_ip, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rowID, e.Timestamp, e.UserID, e.Action, e.CodeHash, string(e.Outcome), e.ClientIP, e.Detail); err != nil {
		l.logger.Error("audit: failed to persist entry", "error", err, "phase", phase, "action", e.Action)
	}

	fields := []any{
		"audit_id", e.ID, "phase", phase, "action", e.Action,
		"user_id", e.UserID, "client_ip", e.ClientIP,
	}
	if e.CodeHash != "" {
		fields = append(fields, "code_hash", e.CodeHash)
	}
	if e.Outcome != "" {
		fields = append(fields, "outcome", string(e.Outcome))
	}
	l.logger.Info("audit", fields...)
}
