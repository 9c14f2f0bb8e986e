package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"lembra/internal/types"
)

// PgCredentialProber validates a presented token by using it as the database
// password on a short-lived connection and attempting a privileged read of
// the worker_settings table. Any authenticated read counts as success, even
// when the table is empty; this is the rotation fallback for the trigger
// endpoint's shared secret.
type PgCredentialProber struct {
	connString types.SecretString
	logger     *slog.Logger
}

// NewPgCredentialProber creates a prober from the worker's base connection
// string. The password in the string is replaced per probe.
func NewPgCredentialProber(connString types.SecretString, logger *slog.Logger) *PgCredentialProber {
	return &PgCredentialProber{
		connString: connString,
		logger:     logger,
	}
}

// Probe reports whether the token behaves as a valid elevated credential.
// Authentication failure or a failed read both reject; an empty result set
// does not, since it still proves the credential authenticated and read a
// privileged table.
func (p *PgCredentialProber) Probe(ctx context.Context, token string) bool {
	cfg, err := pgx.ParseConfig(p.connString.Unmask())
	if err != nil {
		p.logger.Error("credential probe: invalid base connection string", "error", err)
		return false
	}
	cfg.Password = token

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		p.logger.Debug("credential probe: connection rejected", "error", err)
		return false
	}
	defer conn.Close(ctx)

	var value string
	err = conn.QueryRow(ctx, `SELECT value FROM worker_settings LIMIT 1`).Scan(&value)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		p.logger.Debug("credential probe: privileged read failed", "error", err)
		return false
	}

	return true
}
