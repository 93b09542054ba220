package core

// audit.go records who submitted what kind of request and how it ended.
//
// Entries carry counts, outcome and request metadata only. Diagnoses,
// confidences and measurements are never written.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// AuditAction is the kind of submission being audited.
type AuditAction string

const (
	ActionSingleDiagnosis AuditAction = "single_diagnosis"
	ActionBatchDiagnosis  AuditAction = "batch_diagnosis"
	ActionBatchValidate   AuditAction = "batch_validate"
)

// AuditEntry is one row of the submission audit trail. Client address and
// user agent are stored but never serialized to JSON.
type AuditEntry struct {
	ID            string      `json:"id"`
	Action        AuditAction `json:"action"`
	Records       int         `json:"records"`
	Outcome       string      `json:"outcome"`
	ErrorCode     string      `json:"errorCode,omitempty"`
	Status        int         `json:"status,omitempty"`
	DurationMs    int64       `json:"durationMs"`
	CorrelationID string      `json:"correlationId,omitempty"`
	IPAddress     string      `json:"-"`
	UserAgent     string      `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// AuditSink receives audit entries.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// NopAudit discards entries. Used when no database is configured.
type NopAudit struct{}

func (NopAudit) Record(context.Context, AuditEntry) error { return nil }

const auditSchema = `
CREATE TABLE IF NOT EXISTS submission_audit (
	id             UUID PRIMARY KEY,
	action         TEXT NOT NULL,
	records        INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	error_code     TEXT,
	status         INTEGER,
	duration_ms    BIGINT NOT NULL,
	correlation_id TEXT,
	ip_address     TEXT,
	user_agent     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS submission_audit_created_at_idx ON submission_audit (created_at);
`

// PgAudit stores entries in PostgreSQL.
type PgAudit struct {
	db DBTX
}

// NewPgAudit returns a store backed by db. Call EnsureSchema once at startup.
func NewPgAudit(db DBTX) *PgAudit {
	return &PgAudit{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (a *PgAudit) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Record inserts e. A missing ID or CreatedAt is filled in.
func (a *PgAudit) Record(ctx context.Context, e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := a.db.Exec(ctx, `
		INSERT INTO submission_audit
			(id, action, records, outcome, error_code, status, duration_ms,
			 correlation_id, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		toPgUUID(e.ID),
		string(e.Action),
		int32(e.Records),
		e.Outcome,
		toPgText(e.ErrorCode),
		toPgInt4(e.Status),
		e.DurationMs,
		toPgText(e.CorrelationID),
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (a *PgAudit) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(ctx, `
		SELECT id, action, records, outcome, error_code, status, duration_ms,
		       correlation_id, ip_address, user_agent, created_at
		FROM submission_audit
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			id                 pgtype.UUID
			action, outcome    string
			records            int32
			code, corr, ip, ua pgtype.Text
			status             pgtype.Int4
			duration           int64
			created            pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &action, &records, &outcome, &code, &status, &duration, &corr, &ip, &ua, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, AuditEntry{
			ID:            uuidToString(id),
			Action:        AuditAction(action),
			Records:       int(records),
			Outcome:       outcome,
			ErrorCode:     code.String,
			Status:        int(status.Int32),
			DurationMs:    duration,
			CorrelationID: corr.String,
			IPAddress:     ip.String,
			UserAgent:     ua.String,
			CreatedAt:     created.Time,
		})
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes entries older than days and returns the count.
func (a *PgAudit) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := a.db.Exec(ctx,
		`DELETE FROM submission_audit WHERE created_at < now() - make_interval(days => $1)`,
		int32(days))
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
