package signing

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	StatusGenerated          ReportStatus = "generated"
	StatusProfessionalSigned ReportStatus = "professional_signed"
	StatusClientSigned       ReportStatus = "client_signed"
	StatusFullySigned        ReportStatus = "fully_signed"
)

type SignerRole string

const (
	RoleProfessional SignerRole = "professional"
	RoleClient       SignerRole = "client"
)

func (r SignerRole) Valid() bool {
	return r == RoleProfessional || r == RoleClient
}

// Report is one generated technical document awaiting its two signatures.
// ClientSignToken is minted once when the report is generated and is the
// unauthenticated client's only credential.
type Report struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	ServiceRequestID     uuid.UUID    `json:"service_request_id" db:"service_request_id"`
	AuthoredBy           uuid.UUID    `json:"authored_by" db:"authored_by"`
	ClientSignToken      string       `json:"-" db:"client_sign_token"`
	FileName             string       `json:"file_name" db:"file_name"`
	BaseKey              string       `json:"base_key" db:"base_key"`
	LatestKey            string       `json:"latest_key" db:"latest_key"`
	Status               ReportStatus `json:"status" db:"status"`
	ProfessionalSignedAt *time.Time   `json:"professional_signed_at,omitempty" db:"professional_signed_at"`
	ClientSignedAt       *time.Time   `json:"client_signed_at,omitempty" db:"client_signed_at"`
	Revision             int          `json:"revision" db:"revision"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
}

// SignedBy reports whether the given role has already signed.
func (r *Report) SignedBy(role SignerRole) bool {
	if role == RoleProfessional {
		return r.ProfessionalSignedAt != nil
	}
	return r.ClientSignedAt != nil
}

// SignatureRecord is the single row per (report, signer role) carrying the
// live OTP issuance and, once signed, the artifact metadata. Issuing a new
// code overwrites the OTP columns in place; rows are never deleted.
type SignatureRecord struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ReportID       uuid.UUID  `json:"report_id" db:"report_id"`
	SignerRole     SignerRole `json:"signer_role" db:"signer_role"`
	SignerEmail    string     `json:"signer_email" db:"signer_email"`
	OTPHash        string     `json:"-" db:"otp_hash"`
	OTPSalt        string     `json:"-" db:"otp_salt"`
	OTPExpiresAt   *time.Time `json:"otp_expires_at,omitempty" db:"otp_expires_at"`
	OTPVerifiedAt  *time.Time `json:"otp_verified_at,omitempty" db:"otp_verified_at"`
	OTPConsumedAt  *time.Time `json:"otp_consumed_at,omitempty" db:"otp_consumed_at"`
	OTPAttempts    int        `json:"otp_attempts" db:"otp_attempts"`
	OTPLockedAt    *time.Time `json:"otp_locked_at,omitempty" db:"otp_locked_at"`
	SignatureImage []byte     `json:"-" db:"signature_image"`
	SignedKey      *string    `json:"signed_key,omitempty" db:"signed_key"`
	SignedAt       *time.Time `json:"signed_at,omitempty" db:"signed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
