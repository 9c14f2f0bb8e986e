package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lembra/internal/config"
	"lembra/internal/types"
)

// No-op reasons reported when a run ends early with nothing to do.
const (
	NoOpNoCompanies = "no companies with messaging enabled"
	NoOpNoRules     = "no active scheduling rules"
	NoOpNothingDue  = "no reminders due"
)

// Runner executes one full reminder pipeline pass: resolve candidates,
// deduplicate and queue, dispatch what is due, and write the execution
// record. A single "now" is captured at the start and threaded through every
// step, so overlapping invocations are serialized only by the dedup check
// and the send-log status transitions. That leaves a narrow race where two
// overlapping runs both pass the dedup check; delivery is at-least-once by
// design, not exactly-once.
type Runner struct {
	companies    CompanyStore
	messaging    MessagingStore
	appointments AppointmentStore
	sendLogs     SendLogStore
	executions   ExecutionStore
	dispatcher   Dispatcher
	clock        types.Clock
	settings     config.SchedulerConfig
	logger       *slog.Logger
}

// NewRunner creates a Runner with all collaborators injected.
func NewRunner(
	companies CompanyStore,
	messaging MessagingStore,
	appointments AppointmentStore,
	sendLogs SendLogStore,
	executions ExecutionStore,
	dispatcher Dispatcher,
	clock types.Clock,
	settings config.SchedulerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		companies:    companies,
		messaging:    messaging,
		appointments: appointments,
		sendLogs:     sendLogs,
		executions:   executions,
		dispatcher:   dispatcher,
		clock:        clock,
		settings:     settings,
		logger:       logger,
	}
}

// Run executes one invocation. Every run, including a no-op, writes an
// execution record; a pipeline error writes a best-effort ERROR record that
// never masks the original error.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	start := r.clock.Now()

	res, runErr := r.run(ctx, start)
	res.ExecutionTime = start
	res.Duration = r.clock.Now().Sub(start)

	log := types.ExecutionLog{
		ExecutionTime:     start,
		Status:            res.Status,
		MessagesProcessed: res.Processed,
		MessagesSent:      res.Sent,
		MessagesFailed:    res.Failed,
		DurationMS:        res.Duration.Milliseconds(),
	}
	switch {
	case runErr != nil:
		res.Status = types.ExecutionError
		log.Status = types.ExecutionError
		log.ErrorMessage = runErr.Error()
	case res.NoOp():
		log.Details = res.NoOpReason
	default:
		log.Details = fmt.Sprintf("inserted=%d processed=%d sent=%d failed=%d",
			res.Inserted, res.Processed, res.Sent, res.Failed)
	}

	execID, insertErr := r.executions.Insert(ctx, log)
	if insertErr != nil {
		r.logger.Error("failed to write execution record", "error", insertErr)
		if runErr == nil {
			runErr = insertErr
		}
	} else {
		res.ExecutionID = execID
	}

	r.logger.Info("run complete",
		"execution_id", res.ExecutionID,
		"status", string(res.Status),
		"inserted", res.Inserted,
		"processed", res.Processed,
		"sent", res.Sent,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds(),
	)

	return res, runErr
}

// run executes the pipeline steps and returns counts. The caller owns
// execution accounting and the top-level error envelope.
func (r *Runner) run(ctx context.Context, now time.Time) (RunResult, error) {
	var res RunResult
	res.Status = types.ExecutionSuccess

	companies, err := r.companies.ListMessagingEnabled(ctx)
	if err != nil {
		return res, err
	}
	if len(companies) == 0 {
		res.NoOpReason = NoOpNoCompanies
		return res, nil
	}
	companyIDs := make([]string, len(companies))
	for i, c := range companies {
		companyIDs[i] = c.ID
	}

	providers, err := r.messaging.ListActiveProviders(ctx, types.ChannelWhatsApp)
	if err != nil {
		return res, err
	}
	if len(providers) == 0 {
		return res, types.NewAppError(types.ErrCodeConfigNoProvider,
			"no active messaging provider configured for channel WHATSAPP", nil)
	}
	if len(providers) > 1 {
		r.logger.Warn("multiple active providers for channel, using first by id",
			"channel", string(types.ChannelWhatsApp),
			"active_count", len(providers),
			"provider_id", providers[0].ID,
		)
	}
	provider := providers[0]

	rules, err := r.messaging.ListActiveSchedules(ctx, companyIDs, types.ChannelWhatsApp)
	if err != nil {
		return res, err
	}
	if len(rules) == 0 {
		res.NoOpReason = NoOpNoRules
		return res, nil
	}

	// The scan window bounds the appointment query on the civil calendar
	// date. Offsets that land a send time outside it are never found.
	base := now.In(BrasiliaZone)
	fromDate := base.AddDate(0, 0, -r.settings.ScanWindowDays).Format("2006-01-02")
	toDate := base.AddDate(0, 0, r.settings.ScanWindowDays).Format("2006-01-02")
	appts, err := r.appointments.ListInDateWindow(ctx, companyIDs, fromDate, toDate)
	if err != nil {
		return res, err
	}

	candidates := ResolveCandidates(rules, appts, now, r.settings.MatchTolerance, r.logger)
	res.Inserted = r.queueCandidates(ctx, candidates, provider.ID)

	due, err := r.resolveDueSet(ctx, now)
	if err != nil {
		return res, err
	}
	if len(due) == 0 {
		if res.Inserted == 0 {
			res.NoOpReason = NoOpNothingDue
		}
		return res, nil
	}

	for _, d := range due {
		sent, err := r.dispatchOne(ctx, provider, d)
		if err != nil {
			// Outcome recording failed; the row stays PENDING and a later
			// invocation picks it up again.
			r.logger.Error("failed to record dispatch outcome",
				"log_id", d.LogID,
				"error", err,
			)
			continue
		}
		res.Processed++
		if sent {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	switch {
	case res.Failed == 0:
		res.Status = types.ExecutionSuccess
	case res.Sent > 0:
		res.Status = types.ExecutionPartial
	default:
		res.Status = types.ExecutionError
	}

	return res, nil
}

// queueCandidates inserts a PENDING row for each candidate that has no
// existing row near the same send instant. One candidate failing never
// blocks the rest.
func (r *Runner) queueCandidates(ctx context.Context, candidates []Candidate, providerID string) int {
	type templateEntry struct {
		tpl *types.MessageTemplate
	}
	templateCache := make(map[string]templateEntry)

	inserted := 0
	for _, c := range candidates {
		lower := FormatScheduledFor(c.ScheduledFor.Add(-r.settings.DedupWindow))
		upper := FormatScheduledFor(c.ScheduledFor.Add(r.settings.DedupWindow))
		exists, err := r.sendLogs.ExistsNear(ctx, c.Rule.CompanyID, c.Appointment.ID,
			c.Rule.MessageKindID, c.Rule.Channel, lower, upper)
		if err != nil {
			r.logger.Error("dedup check failed, skipping candidate",
				"appointment_id", c.Appointment.ID,
				"company_id", c.Rule.CompanyID,
				"error", err,
			)
			continue
		}
		if exists {
			continue
		}

		cacheKey := c.Rule.CompanyID + "\x00" + c.Rule.MessageKindID
		entry, ok := templateCache[cacheKey]
		if !ok {
			tpl, err := r.messaging.ActiveTemplate(ctx, c.Rule.CompanyID, c.Rule.MessageKindID, c.Rule.Channel)
			if err != nil {
				r.logger.Error("template lookup failed, skipping candidate",
					"company_id", c.Rule.CompanyID,
					"message_kind_id", c.Rule.MessageKindID,
					"error", err,
				)
				continue
			}
			entry = templateEntry{tpl: tpl}
			templateCache[cacheKey] = entry
		}

		var templateID *string
		if entry.tpl != nil {
			id := entry.tpl.ID
			templateID = &id
		}

		_, err = r.sendLogs.InsertPending(ctx, types.MessageSendLog{
			CompanyID:     c.Rule.CompanyID,
			ClientID:      c.Appointment.ClientID,
			AppointmentID: c.Appointment.ID,
			MessageKindID: c.Rule.MessageKindID,
			Channel:       c.Rule.Channel,
			TemplateID:    templateID,
			ProviderID:    providerID,
			ScheduledFor:  FormatScheduledFor(c.ScheduledFor),
		})
		if err != nil {
			r.logger.Error("failed to queue reminder",
				"appointment_id", c.Appointment.ID,
				"company_id", c.Rule.CompanyID,
				"error", err,
			)
			continue
		}
		inserted++
	}

	return inserted
}
