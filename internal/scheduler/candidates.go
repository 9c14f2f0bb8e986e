package scheduler

import (
	"log/slog"
	"time"

	"lembra/internal/db"
	"lembra/internal/types"
)

// Candidate is a reminder that should exist: a (rule, appointment) pair whose
// computed send instant falls inside the match window around "now".
type Candidate struct {
	Rule         types.SchedulingRule
	Appointment  db.AppointmentWithClient
	ScheduledFor time.Time
}

// ReferenceInstant resolves a rule's anchor event to an absolute instant for
// the given appointment. Only APPOINTMENT_START is resolvable; the creation
// reference returns ok=false and the appointment is skipped for that rule.
func ReferenceInstant(rule types.SchedulingRule, appt db.AppointmentWithClient) (time.Time, bool, error) {
	switch rule.Reference {
	case types.ReferenceAppointmentStart:
		t, err := CombineDateTime(appt.Date, appt.Time)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	default:
		return time.Time{}, false, nil
	}
}

// ResolveCandidates crosses every active rule with its company's appointments
// and keeps the pairs whose send instant lands within ±tolerance of now.
// Clients without a normalizable Brazilian phone are skipped here so
// unreachable reminders are never queued. A single appointment matched by
// several rules yields one candidate per rule; that fan-out is intended.
func ResolveCandidates(rules []types.SchedulingRule, appts []db.AppointmentWithClient, now time.Time, tolerance time.Duration, logger *slog.Logger) []Candidate {
	apptsByCompany := make(map[string][]db.AppointmentWithClient, len(appts))
	for _, a := range appts {
		apptsByCompany[a.CompanyID] = append(apptsByCompany[a.CompanyID], a)
	}

	var candidates []Candidate
	for _, rule := range rules {
		for _, appt := range apptsByCompany[rule.CompanyID] {
			ref, ok, err := ReferenceInstant(rule, appt)
			if err != nil {
				logger.Warn("skipping appointment with unparseable date/time",
					"appointment_id", appt.ID,
					"company_id", appt.CompanyID,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}

			scheduledFor := ref.Add(rule.Offset())
			if absDuration(scheduledFor.Sub(now)) > tolerance {
				continue
			}

			if _, ok := NormalizeBR(appt.ClientPhone); !ok {
				logger.Info("skipping candidate without a valid phone",
					"appointment_id", appt.ID,
					"client_id", appt.ClientID,
					"company_id", appt.CompanyID,
				)
				continue
			}

			candidates = append(candidates, Candidate{
				Rule:         rule,
				Appointment:  appt,
				ScheduledFor: scheduledFor,
			})
		}
	}

	return candidates
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
