package db

import (
	"context"

	"lembra/internal/types"
)

// AppointmentWithClient is an appointment row joined with its client's
// contact fields, as needed by candidate resolution.
type AppointmentWithClient struct {
	types.Appointment
	ClientName  string
	ClientPhone string
}

// AppointmentRepository provides read access to appointments. Appointments
// are owned by the booking application.
type AppointmentRepository struct {
	db DBTX
}

// NewAppointmentRepository creates an AppointmentRepository backed by the
// given connection (pool or transaction).
func NewAppointmentRepository(db DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// ListInDateWindow returns non-cancelled appointments for the given companies
// whose calendar date falls in [fromDate, toDate] (inclusive, "2006-01-02"
// strings), joined with client name and phone. Rows with a missing client are
// excluded by the inner join.
func (r *AppointmentRepository) ListInDateWindow(ctx context.Context, companyIDs []string, fromDate, toDate string) ([]AppointmentWithClient, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.company_id, a.client_id, a.date, a.time, a.status,
		        c.name, COALESCE(c.phone, '')
		 FROM appointments a
		 JOIN clients c ON c.id = a.client_id
		 WHERE a.company_id = ANY($1)
		   AND a.date >= $2 AND a.date <= $3
		   AND a.status <> 'cancelled'
		 ORDER BY a.company_id, a.date, a.time, a.id`,
		companyIDs,
		fromDate,
		toDate,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list appointments in window", err)
	}
	defer rows.Close()

	var appts []AppointmentWithClient
	for rows.Next() {
		var a AppointmentWithClient
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.ClientID, &a.Date, &a.Time, &a.Status,
			&a.ClientName, &a.ClientPhone); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan appointment row", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating appointment rows", err)
	}

	return appts, nil
}
