package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Recorder appends ledger entries. Record takes the caller's open
// transaction handle so the append commits or rolls back together with
// the mutation it describes; the recorder never opens its own
// transaction.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record persists one entry inside tx.
func (r *Recorder) Record(ctx context.Context, tx pgx.Tx, entry Entry) error {
	if tx == nil {
		return errors.New("audit: transaction handle required")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit: entry requires action/entity/entity_id")
	}
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (id, user_id, action, entity, entity_id, changes, ip_address, user_agent, tenant_id, reason, recorded_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, NULLIF($9, ''), COALESCE(NULLIF($10, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		entry.UserID, entry.Action, entry.Entity, entry.EntityID, changes,
		entry.IPAddress, entry.UserAgent, entry.TenantID, entry.Reason, entry.RecordedAt,
	)
	return err
}
