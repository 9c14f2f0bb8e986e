package db

import (
	"context"

	"lembra/internal/types"
)

// CompanyRepository provides read access to the companies table. Companies
// are created and mutated by the booking application; the worker only reads
// the messaging toggle.
type CompanyRepository struct {
	db DBTX
}

// NewCompanyRepository creates a CompanyRepository backed by the given
// connection (pool or transaction).
func NewCompanyRepository(db DBTX) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// ListMessagingEnabled returns all companies with messaging enabled, ordered
// by id for deterministic processing.
func (r *CompanyRepository) ListMessagingEnabled(ctx context.Context) ([]types.Company, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, messaging_enabled
		 FROM companies
		 WHERE messaging_enabled = TRUE
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list messaging-enabled companies", err)
	}
	defer rows.Close()

	var companies []types.Company
	for rows.Next() {
		var c types.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.MessagingEnabled); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan company row", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating company rows", err)
	}

	return companies, nil
}
