package signing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrRevisionConflict means a report write lost the optimistic revision
// race; the caller should re-read the report and retry.
var ErrRevisionConflict = errors.New("report revision conflict")

type Repository interface {
	CreateReport(ctx context.Context, report *Report) error
	GetReportByID(ctx context.Context, id uuid.UUID) (*Report, error)
	UpdateReportSigned(ctx context.Context, report *Report) error

	UpsertIssuance(ctx context.Context, rec *SignatureRecord) error
	GetSignatureRecord(ctx context.Context, reportID uuid.UUID, role SignerRole) (*SignatureRecord, error)
	RecordFailedAttempt(ctx context.Context, reportID uuid.UUID, role SignerRole, lockThreshold int) (attempts int, locked bool, err error)
	MarkVerified(ctx context.Context, reportID uuid.UUID, role SignerRole, at time.Time) error
	MarkConsumed(ctx context.Context, reportID uuid.UUID, role SignerRole, at time.Time) error
	SaveSignedArtifact(ctx context.Context, rec *SignatureRecord) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateReport(ctx context.Context, report *Report) error {
	query := `
		INSERT INTO reports (
			id, service_request_id, authored_by, client_sign_token, file_name,
			base_key, latest_key, status, revision
		) VALUES (
			:id, :service_request_id, :authored_by, :client_sign_token, :file_name,
			:base_key, :latest_key, :status, :revision
		)`
	_, err := r.db.NamedExecContext(ctx, query, report)
	return err
}

func (r *postgresRepository) GetReportByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	var report Report
	err := r.db.GetContext(ctx, &report, "SELECT * FROM reports WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &report, err
}

// UpdateReportSigned writes the artifact pointer, signature timestamps and
// status. The WHERE clause on revision makes the write a compare-and-swap:
// a concurrent submit that already advanced the report surfaces here as
// ErrRevisionConflict instead of silently dropping the other stamp.
func (r *postgresRepository) UpdateReportSigned(ctx context.Context, report *Report) error {
	query := `
		UPDATE reports SET
			latest_key = :latest_key,
			status = :status,
			professional_signed_at = :professional_signed_at,
			client_signed_at = :client_signed_at,
			revision = revision + 1
		WHERE id = :id AND revision = :revision`
	res, err := r.db.NamedExecContext(ctx, query, report)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRevisionConflict
	}
	report.Revision++
	return nil
}

// UpsertIssuance creates or overwrites the one live OTP issuance for the
// (report, role) pair. Any prior code, lock and attempt count is superseded.
func (r *postgresRepository) UpsertIssuance(ctx context.Context, rec *SignatureRecord) error {
	query := `
		INSERT INTO signature_records (
			id, report_id, signer_role, signer_email, otp_hash, otp_salt, otp_expires_at, otp_attempts
		) VALUES (
			:id, :report_id, :signer_role, :signer_email, :otp_hash, :otp_salt, :otp_expires_at, 0
		)
		ON CONFLICT (report_id, signer_role) DO UPDATE SET
			signer_email    = EXCLUDED.signer_email,
			otp_hash        = EXCLUDED.otp_hash,
			otp_salt        = EXCLUDED.otp_salt,
			otp_expires_at  = EXCLUDED.otp_expires_at,
			otp_attempts    = 0,
			otp_locked_at   = NULL,
			otp_verified_at = NULL,
			otp_consumed_at = NULL,
			updated_at      = now()`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	return err
}

func (r *postgresRepository) GetSignatureRecord(ctx context.Context, reportID uuid.UUID, role SignerRole) (*SignatureRecord, error) {
	var rec SignatureRecord
	err := r.db.GetContext(ctx, &rec,
		"SELECT * FROM signature_records WHERE report_id = $1 AND signer_role = $2", reportID, role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &rec, err
}

// RecordFailedAttempt bumps the attempt counter atomically and sets the
// lock once the threshold is reached, in one statement, so concurrent
// verify calls cannot undercount each other.
func (r *postgresRepository) RecordFailedAttempt(ctx context.Context, reportID uuid.UUID, role SignerRole, lockThreshold int) (int, bool, error) {
	query := `
		UPDATE signature_records SET
			otp_attempts = otp_attempts + 1,
			otp_locked_at = CASE WHEN otp_attempts + 1 >= $3 THEN now() ELSE otp_locked_at END,
			updated_at = now()
		WHERE report_id = $1 AND signer_role = $2
		RETURNING otp_attempts, otp_locked_at IS NOT NULL`
	var attempts int
	var locked bool
	err := r.db.QueryRowContext(ctx, query, reportID, role, lockThreshold).Scan(&attempts, &locked)
	return attempts, locked, err
}

func (r *postgresRepository) MarkVerified(ctx context.Context, reportID uuid.UUID, role SignerRole, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE signature_records SET otp_verified_at = $3, updated_at = now() WHERE report_id = $1 AND signer_role = $2",
		reportID, role, at)
	return err
}

func (r *postgresRepository) MarkConsumed(ctx context.Context, reportID uuid.UUID, role SignerRole, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE signature_records SET otp_consumed_at = $3, updated_at = now() WHERE report_id = $1 AND signer_role = $2",
		reportID, role, at)
	return err
}

func (r *postgresRepository) SaveSignedArtifact(ctx context.Context, rec *SignatureRecord) error {
	query := `
		UPDATE signature_records SET
			signature_image = :signature_image,
			signed_key = :signed_key,
			signed_at = :signed_at,
			updated_at = now()
		WHERE report_id = :report_id AND signer_role = :signer_role`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	return err
}
