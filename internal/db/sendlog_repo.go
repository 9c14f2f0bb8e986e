package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lembra/internal/types"
)

// DueReminder is a PENDING send-log row joined with everything dispatch needs
// to render and send it: client contact fields, company name, the appointment
// civil date/time, and the resolved template body (nil when the company has
// no active template for the message kind).
type DueReminder struct {
	LogID         string
	CompanyID     string
	ClientID      string
	AppointmentID string
	MessageKindID string
	Channel       types.Channel
	ScheduledFor  string

	ClientName      string
	ClientPhone     string
	CompanyName     string
	AppointmentDate string
	AppointmentTime string
	TemplateBody    *string
}

// SendLogRepository owns the message_send_log table, the only table the
// worker both reads and writes.
type SendLogRepository struct {
	db DBTX
}

// NewSendLogRepository creates a SendLogRepository backed by the given
// connection (pool or transaction).
func NewSendLogRepository(db DBTX) *SendLogRepository {
	return &SendLogRepository{db: db}
}

// ExistsNear reports whether a log row already exists for the same
// (company, appointment, kind, channel) with scheduled_for inside
// [lowerBound, upperBound]. Bounds are the stored text representation with
// the explicit civil offset; because every stored value shares that fixed
// offset and layout, lexicographic comparison is chronological comparison.
func (r *SendLogRepository) ExistsNear(ctx context.Context, companyID, appointmentID, messageKindID string, channel types.Channel, lowerBound, upperBound string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM message_send_log
		   WHERE company_id = $1
		     AND appointment_id = $2
		     AND message_kind_id = $3
		     AND channel = $4
		     AND scheduled_for >= $5
		     AND scheduled_for <= $6
		 )`,
		companyID,
		appointmentID,
		messageKindID,
		string(channel),
		lowerBound,
		upperBound,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check for existing send log", err)
	}
	return exists, nil
}

// InsertPending inserts a new PENDING send-log row and returns its generated
// id.
func (r *SendLogRepository) InsertPending(ctx context.Context, log types.MessageSendLog) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(ctx,
		`INSERT INTO message_send_log
		   (id, company_id, client_id, appointment_id, message_kind_id, channel,
		    template_id, provider_id, scheduled_for, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id,
		log.CompanyID,
		log.ClientID,
		log.AppointmentID,
		log.MessageKindID,
		string(log.Channel),
		log.TemplateID,
		log.ProviderID,
		log.ScheduledFor,
		string(types.SendPending),
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to insert pending send log", err)
	}
	return id, nil
}

const dueReminderSelect = `
	SELECT l.id, l.company_id, l.client_id, l.appointment_id, l.message_kind_id,
	       l.channel, l.scheduled_for,
	       cl.name, COALESCE(cl.phone, ''),
	       co.name,
	       a.date, a.time,
	       t.body
	FROM message_send_log l
	JOIN clients cl ON cl.id = l.client_id
	JOIN companies co ON co.id = l.company_id
	JOIN appointments a ON a.id = l.appointment_id
	LEFT JOIN company_message_templates t ON t.id = l.template_id AND t.active = TRUE
	WHERE l.status = 'PENDING'`

// ListDue returns PENDING rows whose stored scheduled_for compares at or
// before the cutoff text bound. This is the primary due query; the caller
// cross-checks its count against CountPending and falls back to
// ListAllPending when they disagree.
func (r *SendLogRepository) ListDue(ctx context.Context, cutoff string) ([]DueReminder, error) {
	rows, err := r.db.Query(ctx,
		dueReminderSelect+`
		   AND l.scheduled_for <= $1
		 ORDER BY l.scheduled_for, l.id`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due send logs", err)
	}
	return scanDueReminders(rows)
}

// ListAllPending returns every PENDING row regardless of scheduled_for. The
// caller filters in-process by parsed instant; this path exists because text
// comparison across mixed-offset representations is unreliable for rows
// written by older tooling.
func (r *SendLogRepository) ListAllPending(ctx context.Context) ([]DueReminder, error) {
	rows, err := r.db.Query(ctx,
		dueReminderSelect+`
		 ORDER BY l.scheduled_for, l.id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending send logs", err)
	}
	return scanDueReminders(rows)
}

// CountPending returns the total number of PENDING rows.
func (r *SendLogRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM message_send_log WHERE status = 'PENDING'`,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count pending send logs", err)
	}
	return count, nil
}

// MarkOutcome finalizes a send-log row after a dispatch attempt, recording
// the terminal status, the attempt instant, and the provider's response body
// (or the error detail) for diagnosis.
func (r *SendLogRepository) MarkOutcome(ctx context.Context, logID string, status types.SendStatus, sentAt time.Time, providerResponse any) error {
	respJSON, err := json.Marshal(providerResponse)
	if err != nil {
		// Provider bodies come from json.Unmarshal or are plain strings, so
		// this only trips on an unserializable error payload.
		respJSON = []byte(`{"error":"unserializable provider response"}`)
	}

	_, err = r.db.Exec(ctx,
		`UPDATE message_send_log
		 SET status = $2, sent_at = $3, provider_response = $4
		 WHERE id = $1`,
		logID,
		string(status),
		sentAt,
		respJSON,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record send outcome", err)
	}
	return nil
}

func scanDueReminders(rows pgx.Rows) ([]DueReminder, error) {
	defer rows.Close()

	var due []DueReminder
	for rows.Next() {
		var (
			d       DueReminder
			channel string
		)
		if err := rows.Scan(&d.LogID, &d.CompanyID, &d.ClientID, &d.AppointmentID, &d.MessageKindID,
			&channel, &d.ScheduledFor,
			&d.ClientName, &d.ClientPhone,
			&d.CompanyName,
			&d.AppointmentDate, &d.AppointmentTime,
			&d.TemplateBody); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan due send log row", err)
		}
		d.Channel = types.Channel(channel)
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due send log rows", err)
	}

	return due, nil
}
