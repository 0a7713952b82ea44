package signing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"homehub/service-portal/service-portal-backend/internal/identity"
	"homehub/service-portal/service-portal-backend/pkg/mailer"
	"homehub/service-portal/service-portal-backend/pkg/storage"
)

// submitRetries bounds how often a submit re-runs the download-stamp-upload
// loop after losing the report revision race to a concurrent signer.
const submitRetries = 3

type Service interface {
	RequestOTP(ctx context.Context, reportID uuid.UUID, in RequestOTPInput) (*OTPIssued, error)
	VerifyOTP(ctx context.Context, reportID uuid.UUID, in VerifyOTPInput) (*OTPVerified, error)
	SubmitSignature(ctx context.Context, reportID uuid.UUID, in SubmitSignatureInput) (*SignatureResult, error)
	GetReport(ctx context.Context, reportID uuid.UUID, cred Credential) (*ReportView, error)
}

type RequestOTPInput struct {
	Role       SignerRole
	Credential Credential
}

type VerifyOTPInput struct {
	Role       SignerRole
	Code       string
	Credential Credential
}

type SubmitSignatureInput struct {
	Role           SignerRole
	Code           string
	SignatureImage string
	Credential     Credential
}

type OTPIssued struct {
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
}

type OTPVerified struct {
	VerifiedAt time.Time `json:"verified_at"`
}

type SignatureResult struct {
	SignedFileURL string       `json:"signed_file_url"`
	Status        ReportStatus `json:"status"`
}

type ReportView struct {
	ID                   uuid.UUID    `json:"id"`
	Status               ReportStatus `json:"status"`
	FileURL              string       `json:"file_url"`
	FileName             string       `json:"file_name"`
	ProfessionalSignedAt *time.Time   `json:"professional_signed_at"`
	ClientSignedAt       *time.Time   `json:"client_signed_at"`
}

// Policy holds the workflow knobs that are deliberately configuration
// rather than hardcoded behavior. OTPSingleUse makes submit-signature the
// one authoritative consumer of a code; AllowResign lets a role that has
// already signed overwrite its own signature.
type Policy struct {
	OTPTTL       time.Duration
	OTPSingleUse bool
	AllowResign  bool
}

type signingService struct {
	repo         Repository
	otp          *OTPManager
	stamper      *Stamper
	professional Authorizer
	client       Authorizer
	directory    identity.Directory
	blob         storage.S3Client
	mail         mailer.EmailSender
	bucket       string
	policy       Policy
	now          func() time.Time
}

func NewService(
	repo Repository,
	otp *OTPManager,
	stamper *Stamper,
	professional Authorizer,
	client Authorizer,
	directory identity.Directory,
	blob storage.S3Client,
	mail mailer.EmailSender,
	bucket string,
	policy Policy,
) Service {
	if policy.OTPTTL <= 0 {
		policy.OTPTTL = DefaultOTPTTL
	}
	return &signingService{
		repo:         repo,
		otp:          otp,
		stamper:      stamper,
		professional: professional,
		client:       client,
		directory:    directory,
		blob:         blob,
		mail:         mail,
		bucket:       bucket,
		policy:       policy,
		now:          time.Now,
	}
}

func (s *signingService) loadReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	report, err := s.repo.GetReportByID(ctx, id)
	if err != nil {
		return nil, Wrap(KindPersistence, "loading report", err)
	}
	if report == nil {
		return nil, E(KindNotFound, "report not found")
	}
	return report, nil
}

func (s *signingService) authorize(ctx context.Context, report *Report, role SignerRole, cred Credential) error {
	switch role {
	case RoleProfessional:
		return s.professional.Authorize(ctx, report, cred)
	case RoleClient:
		return s.client.Authorize(ctx, report, cred)
	default:
		return E(KindValidation, "unknown signer role")
	}
}

func (s *signingService) signerEmail(ctx context.Context, report *Report, role SignerRole) (string, error) {
	var email string
	var err error
	if role == RoleProfessional {
		email, err = s.directory.EmailOf(ctx, report.AuthoredBy)
	} else {
		email, err = s.directory.ClientEmailOf(ctx, report.ServiceRequestID)
	}
	if errors.Is(err, identity.ErrNotFound) {
		return "", E(KindNotFound, "no email on file for this signer")
	}
	if err != nil {
		return "", Wrap(KindPersistence, "resolving signer email", err)
	}
	return email, nil
}

func (s *signingService) RequestOTP(ctx context.Context, reportID uuid.UUID, in RequestOTPInput) (*OTPIssued, error) {
	if !in.Role.Valid() {
		return nil, E(KindValidation, "unknown signer role")
	}
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, report, in.Role, in.Credential); err != nil {
		return nil, err
	}

	email, err := s.signerEmail(ctx, report, in.Role)
	if err != nil {
		return nil, err
	}
	issued, err := s.otp.Issue(ctx, report.ID, in.Role, email, s.policy.OTPTTL)
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Your signing code for %s", report.FileName)
	body := fmt.Sprintf(
		"Your one-time code to sign %s is %s. It expires in %d minutes. If you did not request this, ignore this message.",
		report.FileName, issued.Code, int(s.policy.OTPTTL.Minutes()))
	if err := s.mail.Send(ctx, email, subject, body); err != nil {
		return nil, Wrap(KindStorage, "sending code email", err)
	}

	return &OTPIssued{ExpiresAt: issued.ExpiresAt, Email: email}, nil
}

// VerifyOTP is advisory: it confirms the code for UI feedback but never
// consumes it. SubmitSignature re-verifies on its own.
func (s *signingService) VerifyOTP(ctx context.Context, reportID uuid.UUID, in VerifyOTPInput) (*OTPVerified, error) {
	if !in.Role.Valid() {
		return nil, E(KindValidation, "unknown signer role")
	}
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, report, in.Role, in.Credential); err != nil {
		return nil, err
	}
	rec, err := s.otp.Verify(ctx, reportID, in.Role, in.Code)
	if err != nil {
		return nil, err
	}
	return &OTPVerified{VerifiedAt: *rec.OTPVerifiedAt}, nil
}

func (s *signingService) SubmitSignature(ctx context.Context, reportID uuid.UUID, in SubmitSignatureInput) (*SignatureResult, error) {
	if !in.Role.Valid() {
		return nil, E(KindValidation, "unknown signer role")
	}
	img, err := DecodeSignaturePayload(in.SignatureImage)
	if err != nil {
		return nil, err
	}
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, report, in.Role, in.Credential); err != nil {
		return nil, err
	}
	rec, err := s.otp.Verify(ctx, reportID, in.Role, in.Code)
	if err != nil {
		return nil, err
	}
	if report.SignedBy(in.Role) && !s.policy.AllowResign {
		return nil, E(KindValidation, "this signer has already signed the report")
	}

	var signedKey string
	var signedAt time.Time
	for attempt := 0; ; attempt++ {
		// Stamp on top of whatever is latest so both signatures
		// accumulate in the final artifact.
		pdfReader, err := s.blob.Download(ctx, s.bucket, report.LatestKey)
		if err != nil {
			return nil, Wrap(KindStorage, "downloading report artifact", err)
		}
		pdf, err := io.ReadAll(pdfReader)
		pdfReader.Close()
		if err != nil {
			return nil, Wrap(KindStorage, "reading report artifact", err)
		}

		stamped, err := s.stamper.Stamp(pdf, img, in.Role)
		if err != nil {
			return nil, err
		}

		// Fresh key every time; a prior signed artifact is never
		// overwritten.
		signedKey = fmt.Sprintf("reports/%s/signed/%s.pdf", report.ID, uuid.New())
		if err := s.blob.Upload(ctx, s.bucket, signedKey, bytes.NewReader(stamped), "application/pdf"); err != nil {
			return nil, Wrap(KindStorage, "uploading signed artifact", err)
		}

		signedAt = s.now()
		rec.SignatureImage = img
		rec.SignedKey = &signedKey
		rec.SignedAt = &signedAt
		if err := s.repo.SaveSignedArtifact(ctx, rec); err != nil {
			return nil, Wrap(KindPersistence, "saving signature record", err)
		}

		if in.Role == RoleProfessional {
			report.ProfessionalSignedAt = &signedAt
		} else {
			report.ClientSignedAt = &signedAt
		}
		report.LatestKey = signedKey
		report.Status = NextStatus(report.ProfessionalSignedAt != nil, report.ClientSignedAt != nil)

		err = s.repo.UpdateReportSigned(ctx, report)
		if err == nil {
			break
		}
		if errors.Is(err, ErrRevisionConflict) && attempt+1 < submitRetries {
			report, err = s.loadReport(ctx, reportID)
			if err != nil {
				return nil, err
			}
			continue
		}
		return nil, Wrap(KindPersistence, "updating report", err)
	}

	if s.otp.SingleUse() {
		if err := s.otp.Consume(ctx, reportID, in.Role); err != nil {
			return nil, err
		}
	}

	return &SignatureResult{
		SignedFileURL: s.blob.ObjectURL(s.bucket, signedKey),
		Status:        report.Status,
	}, nil
}

func (s *signingService) GetReport(ctx context.Context, reportID uuid.UUID, cred Credential) (*ReportView, error) {
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	// Either party may look: a client token is tried as such, anything
	// else must be a professional bearer.
	role := RoleProfessional
	if cred.ClientToken != "" {
		role = RoleClient
	}
	if err := s.authorize(ctx, report, role, cred); err != nil {
		return nil, err
	}
	return &ReportView{
		ID:                   report.ID,
		Status:               report.Status,
		FileURL:              s.blob.ObjectURL(s.bucket, report.LatestKey),
		FileName:             report.FileName,
		ProfessionalSignedAt: report.ProfessionalSignedAt,
		ClientSignedAt:       report.ClientSignedAt,
	}, nil
}
