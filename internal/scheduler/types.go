package scheduler

import (
	"context"
	"time"

	"lembra/internal/db"
	"lembra/internal/types"
)

// CompanyStore is the company read surface the pipeline needs.
type CompanyStore interface {
	// ListMessagingEnabled returns companies with messaging enabled,
	// ordered by id.
	ListMessagingEnabled(ctx context.Context) ([]types.Company, error)
}

// MessagingStore is the messaging-configuration read surface: providers,
// scheduling rules, and templates.
type MessagingStore interface {
	// ListActiveProviders returns active providers for a channel ordered
	// by id. Zero is a fatal configuration error for the run.
	ListActiveProviders(ctx context.Context, channel types.Channel) ([]types.MessagingProvider, error)

	// ListActiveSchedules returns active rules for the given companies on
	// a channel.
	ListActiveSchedules(ctx context.Context, companyIDs []string, channel types.Channel) ([]types.SchedulingRule, error)

	// ActiveTemplate returns the active template for (company, kind,
	// channel), or nil when none exists.
	ActiveTemplate(ctx context.Context, companyID, messageKindID string, channel types.Channel) (*types.MessageTemplate, error)
}

// AppointmentStore is the appointment read surface for candidate resolution.
type AppointmentStore interface {
	// ListInDateWindow returns non-cancelled appointments (joined with
	// client contact fields) whose date falls in [fromDate, toDate].
	ListInDateWindow(ctx context.Context, companyIDs []string, fromDate, toDate string) ([]db.AppointmentWithClient, error)
}

// SendLogStore is the read/write surface on the send log.
type SendLogStore interface {
	ExistsNear(ctx context.Context, companyID, appointmentID, messageKindID string, channel types.Channel, lowerBound, upperBound string) (bool, error)
	InsertPending(ctx context.Context, log types.MessageSendLog) (string, error)
	ListDue(ctx context.Context, cutoff string) ([]db.DueReminder, error)
	ListAllPending(ctx context.Context) ([]db.DueReminder, error)
	CountPending(ctx context.Context) (int, error)
	MarkOutcome(ctx context.Context, logID string, status types.SendStatus, sentAt time.Time, providerResponse any) error
}

// ExecutionStore appends per-invocation summary rows.
type ExecutionStore interface {
	Insert(ctx context.Context, log types.ExecutionLog) (string, error)
}

// Dispatcher performs the outbound provider call for one reminder. The call
// never returns an error: transport failures are folded into a non-OK
// DispatchResult whose Body carries the error detail, because the outcome is
// recorded on the send log either way.
type Dispatcher interface {
	Send(ctx context.Context, provider types.MessagingProvider, phoneDigits, messageText string) types.DispatchResult
}

// RunResult summarizes one pipeline invocation for the HTTP response.
type RunResult struct {
	ExecutionID   string
	ExecutionTime time.Time
	Duration      time.Duration
	Status        types.ExecutionStatus

	Inserted  int
	Processed int
	Sent      int
	Failed    int

	// NoOpReason is set when the run ended early with nothing to do (no
	// enabled companies, no active rules, nothing due). The handler then
	// returns only a message.
	NoOpReason string
}

// NoOp reports whether the run ended early with nothing to process.
func (r RunResult) NoOp() bool { return r.NoOpReason != "" }
