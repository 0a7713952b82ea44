package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound means no email could be resolved for the given id.
var ErrNotFound = errors.New("identity not found")

// Directory resolves signer email addresses. Professionals are looked up
// by account id; clients have no account and are reached through the
// service request that originated the report.
type Directory interface {
	EmailOf(ctx context.Context, professionalID uuid.UUID) (string, error)
	ClientEmailOf(ctx context.Context, serviceRequestID uuid.UUID) (string, error)
}

type postgresDirectory struct {
	db *sqlx.DB
}

func NewDirectory(db *sqlx.DB) Directory {
	return &postgresDirectory{db: db}
}

func (d *postgresDirectory) EmailOf(ctx context.Context, professionalID uuid.UUID) (string, error) {
	var email string
	err := d.db.GetContext(ctx, &email, "SELECT email FROM users WHERE id = $1", professionalID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return email, err
}

func (d *postgresDirectory) ClientEmailOf(ctx context.Context, serviceRequestID uuid.UUID) (string, error) {
	var email string
	err := d.db.GetContext(ctx, &email, "SELECT client_email FROM service_requests WHERE id = $1", serviceRequestID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return email, err
}
