package db

import (
	"context"

	"lembra/internal/types"
)

// MessagingRepository provides read access to messaging configuration:
// providers, per-company scheduling rules, and message templates.
type MessagingRepository struct {
	db DBTX
}

// NewMessagingRepository creates a MessagingRepository backed by the given
// connection (pool or transaction).
func NewMessagingRepository(db DBTX) *MessagingRepository {
	return &MessagingRepository{db: db}
}

// ListActiveProviders returns the active providers for a channel ordered by
// id. The expected cardinality is exactly one; the caller treats zero as a
// fatal configuration error and more than one as a flagged ambiguity
// (first-by-id wins, with a warning).
func (r *MessagingRepository) ListActiveProviders(ctx context.Context, channel types.Channel) ([]types.MessagingProvider, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, channel, base_url, http_method, auth_header_name, auth_token,
		        payload_template, content_type, user_id, queue_id, active
		 FROM messaging_providers
		 WHERE channel = $1 AND active = TRUE
		 ORDER BY id`,
		string(channel),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active providers", err)
	}
	defer rows.Close()

	var providers []types.MessagingProvider
	for rows.Next() {
		var (
			p         types.MessagingProvider
			channel   string
			authToken string
			ctype     string
		)
		if err := rows.Scan(&p.ID, &channel, &p.BaseURL, &p.HTTPMethod, &p.AuthHeaderName,
			&authToken, &p.PayloadTemplate, &ctype, &p.UserID, &p.QueueID, &p.Active); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan provider row", err)
		}
		p.Channel = types.Channel(channel)
		p.AuthToken = types.SecretString(authToken)
		p.ContentType = types.ContentType(ctype)
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating provider rows", err)
	}

	return providers, nil
}

// ListActiveSchedules returns the active scheduling rules for the given
// companies on a channel.
func (r *MessagingRepository) ListActiveSchedules(ctx context.Context, companyIDs []string, channel types.Channel) ([]types.SchedulingRule, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, company_id, message_kind_id, channel, offset_value, offset_unit, reference, active
		 FROM company_message_schedules
		 WHERE company_id = ANY($1) AND channel = $2 AND active = TRUE
		 ORDER BY company_id, id`,
		companyIDs,
		string(channel),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scheduling rules", err)
	}
	defer rows.Close()

	var rules []types.SchedulingRule
	for rows.Next() {
		var (
			rule      types.SchedulingRule
			channel   string
			unit      string
			reference string
		)
		if err := rows.Scan(&rule.ID, &rule.CompanyID, &rule.MessageKindID, &channel,
			&rule.OffsetValue, &unit, &reference, &rule.Active); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan scheduling rule row", err)
		}
		rule.Channel = types.Channel(channel)
		rule.OffsetUnit = types.OffsetUnit(unit)
		rule.Reference = types.ScheduleReference(reference)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating scheduling rule rows", err)
	}

	return rules, nil
}

// ActiveTemplate returns the active template for (company, kind, channel),
// or nil when none exists. A missing template is not an error: the dispatch
// step falls back to a generic body.
func (r *MessagingRepository) ActiveTemplate(ctx context.Context, companyID, messageKindID string, channel types.Channel) (*types.MessageTemplate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, company_id, message_kind_id, channel, body, active
		 FROM company_message_templates
		 WHERE company_id = $1 AND message_kind_id = $2 AND channel = $3 AND active = TRUE
		 ORDER BY id
		 LIMIT 1`,
		companyID,
		messageKindID,
		string(channel),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up template", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "error reading template row", err)
		}
		return nil, nil
	}

	var (
		t          types.MessageTemplate
		channelStr string
	)
	if err := rows.Scan(&t.ID, &t.CompanyID, &t.MessageKindID, &channelStr, &t.Body, &t.Active); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan template row", err)
	}
	t.Channel = types.Channel(channelStr)

	return &t, nil
}
