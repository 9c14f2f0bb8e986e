package scheduler

import (
	"context"
	"fmt"
	"time"

	"lembra/internal/db"
	"lembra/internal/types"
)

// resolveDueSet returns the PENDING rows due for dispatch at "now" plus the
// configured forward tolerance.
//
// The primary query compares the stored scheduled_for text against the
// cutoff lexicographically, which is only chronological when every row uses
// the canonical layout. Rows written by earlier tooling carry mixed
// representations, so when the primary query finds nothing while PENDING
// rows exist, all PENDING rows are loaded and filtered in-process by parsed
// instant instead.
func (r *Runner) resolveDueSet(ctx context.Context, now time.Time) ([]db.DueReminder, error) {
	cutoffInstant := now.Add(r.settings.DispatchTolerance)
	cutoff := FormatScheduledFor(cutoffInstant)

	due, err := r.sendLogs.ListDue(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	totalPending, err := r.sendLogs.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(due) > 0 || totalPending == 0 {
		return due, nil
	}

	r.logger.Warn("due query returned nothing while pending rows exist, falling back to in-process filtering",
		"pending_count", totalPending,
	)

	all, err := r.sendLogs.ListAllPending(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]db.DueReminder, 0, len(all))
	for _, d := range all {
		at, err := ParseScheduledFor(d.ScheduledFor)
		if err != nil {
			r.logger.Warn("pending row with unparseable scheduled_for left in place",
				"log_id", d.LogID,
				"scheduled_for", d.ScheduledFor,
			)
			continue
		}
		if at.UnixMilli() <= cutoffInstant.UnixMilli() {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// dispatchOne renders and sends a single due reminder and records its
// terminal outcome. It returns whether the send succeeded; errors are
// reserved for outcome-recording failures, since the provider call itself
// never aborts the run.
func (r *Runner) dispatchOne(ctx context.Context, provider types.MessagingProvider, d db.DueReminder) (bool, error) {
	now := r.clock.Now()

	e164, ok := NormalizeBR(d.ClientPhone)
	if !ok {
		// Queued before the phone was edited into something unusable, or
		// written by another producer. Terminal failure without a call.
		if err := r.sendLogs.MarkOutcome(ctx, d.LogID, types.SendFailed, now, map[string]any{
			"error": fmt.Sprintf("client phone %q does not normalize to a valid number", d.ClientPhone),
		}); err != nil {
			return false, err
		}
		return false, nil
	}

	var dateTimeBR string
	if at, err := CombineDateTime(d.AppointmentDate, d.AppointmentTime); err == nil {
		dateTimeBR = FormatBR(at)
	}
	text := RenderBody(d.TemplateBody, d.ClientName, d.CompanyName, dateTimeBR)

	result := r.dispatcher.Send(ctx, provider, DigitsForProvider(e164), text)

	status := types.SendFailed
	if result.OK {
		status = types.SendSent
	}
	if err := r.sendLogs.MarkOutcome(ctx, d.LogID, status, now, result.Body); err != nil {
		return false, err
	}

	if !result.OK {
		r.logger.Warn("provider rejected reminder",
			"log_id", d.LogID,
			"company_id", d.CompanyID,
			"status_code", result.StatusCode,
		)
	}
	return result.OK, nil
}
