// Package types defines the domain records and shared primitives for the
// Lembra reminder worker. The entities mirror rows in the hosted relational
// store; except for MessageSendLog and ExecutionLog, the worker only reads
// them and never owns their lifecycle.
package types

import (
	"time"
)

// Channel identifies an outbound messaging channel.
type Channel string

const (
	// ChannelWhatsApp is the only channel with a dispatch implementation.
	ChannelWhatsApp Channel = "WHATSAPP"
)

// OffsetUnit is the unit of a scheduling rule's offset value.
type OffsetUnit string

const (
	OffsetMinutes OffsetUnit = "MINUTES"
	OffsetHours   OffsetUnit = "HOURS"
	OffsetDays    OffsetUnit = "DAYS"
)

// ScheduleReference is the anchor event from which a rule's offset is measured.
type ScheduleReference string

const (
	// ReferenceAppointmentStart anchors the offset on the appointment's
	// date+time. This is the only reference with a resolution path.
	ReferenceAppointmentStart ScheduleReference = "APPOINTMENT_START"

	// ReferenceAppointmentCreation is recognized but unhandled: resolving it
	// yields no reminder. Kept as an extension point for creation-anchored
	// rules, not an error.
	ReferenceAppointmentCreation ScheduleReference = "APPOINTMENT_CREATION"
)

// SendStatus is the lifecycle state of a MessageSendLog row.
type SendStatus string

const (
	SendPending SendStatus = "PENDING"
	SendSent    SendStatus = "SENT"
	SendFailed  SendStatus = "FAILED"

	// SendCancelled is a recognized state with no producer in the worker.
	// It stays reachable in the enum for a future cancellation flow
	// (appointment cancelled after the reminder was queued).
	SendCancelled SendStatus = "CANCELLED"
)

// ExecutionStatus classifies a single worker invocation.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionPartial ExecutionStatus = "PARTIAL"
	ExecutionError   ExecutionStatus = "ERROR"
)

// ContentType selects the provider payload encoding.
type ContentType string

const (
	ContentTypeJSON     ContentType = "json"
	ContentTypeFormData ContentType = "form-data"
)

// Company is a tenant. The worker only reads companies and only cares about
// the messaging toggle.
type Company struct {
	ID               string
	Name             string
	MessagingEnabled bool
}

// SchedulingRule defines when, relative to an anchor event, a reminder for a
// given message kind should fire for a company.
type SchedulingRule struct {
	ID            string
	CompanyID     string
	MessageKindID string
	Channel       Channel
	OffsetValue   int
	OffsetUnit    OffsetUnit
	Reference     ScheduleReference
	Active        bool
}

// Offset returns the rule's signed offset as a duration. Days are calendar-
// agnostic 24h blocks; the civil-time arithmetic happens on the anchor
// instant, not on calendar dates.
func (r SchedulingRule) Offset() time.Duration {
	switch r.OffsetUnit {
	case OffsetHours:
		return time.Duration(r.OffsetValue) * time.Hour
	case OffsetDays:
		return time.Duration(r.OffsetValue) * 24 * time.Hour
	default:
		return time.Duration(r.OffsetValue) * time.Minute
	}
}

// Appointment is a booked service slot. Date and Time are the naive civil
// values exactly as authored in the booking UI; they are always wall-clock
// Brasília time regardless of where the server or client sits.
type Appointment struct {
	ID        string
	CompanyID string
	ClientID  string
	Date      string // "2006-01-02"
	Time      string // "15:04" or "15:04:05"
	Status    string
}

// Client is the person a reminder goes to. Phone is unvalidated free text
// from intake flows and must be normalized before use.
type Client struct {
	ID    string
	Name  string
	Phone string
}

// MessageTemplate is a per-company message body with bracket placeholders
// ([CLIENTE], [EMPRESA], [DATA_HORA]).
type MessageTemplate struct {
	ID            string
	CompanyID     string
	MessageKindID string
	Channel       Channel
	Body          string
	Active        bool
}

// MessagingProvider is the outbound HTTP gateway configuration for a channel.
// Exactly one active provider per channel is expected; more than one is a
// flagged configuration ambiguity, zero is a fatal configuration error.
type MessagingProvider struct {
	ID              string
	Channel         Channel
	BaseURL         string
	HTTPMethod      string
	AuthHeaderName  string
	AuthToken       SecretString
	PayloadTemplate PayloadTemplate
	ContentType     ContentType
	UserID          string
	QueueID         string
	Active          bool
}

// MessageSendLog is the only entity the worker creates and mutates.
// ScheduledFor is stored as text carrying the Brasília civil time with its
// explicit -03:00 offset; dedup comparisons run on that representation.
type MessageSendLog struct {
	ID               string
	CompanyID        string
	ClientID         string
	AppointmentID    string
	MessageKindID    string
	Channel          Channel
	TemplateID       *string
	ProviderID       string
	ScheduledFor     string
	SentAt           *time.Time
	Status           SendStatus
	ProviderResponse any
}

// ExecutionLog is the append-only per-invocation summary record.
type ExecutionLog struct {
	ID                string
	ExecutionTime     time.Time
	Status            ExecutionStatus
	MessagesProcessed int
	MessagesSent      int
	MessagesFailed    int
	DurationMS        int64
	Details           string
	ErrorMessage      string
}
