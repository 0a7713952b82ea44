package signing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	otpSpace         = 1000000
	otpSaltLen       = 16
	otpKDFIterations = 4096
	otpKeyLen        = 32

	// DefaultOTPMaxAttempts locks an issuance after this many wrong codes.
	DefaultOTPMaxAttempts = 5
	// DefaultOTPTTL is how long an issued code stays valid.
	DefaultOTPTTL = 10 * time.Minute
)

// OTPManager issues and verifies the per-(report, role) one-time codes.
// Per issuance the state machine is NONE -> ISSUED -> {VERIFIED | LOCKED};
// expiry is computed from the clock, and a fresh Issue is the only way out
// of LOCKED.
type OTPManager struct {
	repo        Repository
	maxAttempts int
	singleUse   bool
	now         func() time.Time
}

func NewOTPManager(repo Repository, maxAttempts int, singleUse bool) *OTPManager {
	if maxAttempts <= 0 {
		maxAttempts = DefaultOTPMaxAttempts
	}
	return &OTPManager{
		repo:        repo,
		maxAttempts: maxAttempts,
		singleUse:   singleUse,
		now:         time.Now,
	}
}

// GenerateCode returns a uniformly distributed six-digit code. Draws are
// rejection-sampled so the non-power-of-two range carries no modulo bias.
func GenerateCode() (string, error) {
	// Largest multiple of otpSpace representable in a uint32.
	const limit = (1 << 32) / otpSpace * otpSpace
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", Wrap(KindConfiguration, "reading entropy", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) < limit {
			return fmt.Sprintf("%06d", v%otpSpace), nil
		}
	}
}

func hashCode(code string, salt []byte) string {
	key := pbkdf2.Key([]byte(code), salt, otpKDFIterations, otpKeyLen, sha256.New)
	return hex.EncodeToString(key)
}

type Issuance struct {
	Code      string
	ExpiresAt time.Time
}

// Issue mints a new code for the signer and upserts the signature record,
// resetting attempts, lock, verification and consumption state. The
// plaintext code is returned for out-of-band delivery only and is never
// persisted.
func (m *OTPManager) Issue(ctx context.Context, reportID uuid.UUID, role SignerRole, email string, ttl time.Duration) (*Issuance, error) {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	salt := make([]byte, otpSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, Wrap(KindConfiguration, "reading entropy", err)
	}
	expiresAt := m.now().Add(ttl)
	rec := &SignatureRecord{
		ID:           uuid.New(),
		ReportID:     reportID,
		SignerRole:   role,
		SignerEmail:  email,
		OTPHash:      hashCode(code, salt),
		OTPSalt:      hex.EncodeToString(salt),
		OTPExpiresAt: &expiresAt,
	}
	if err := m.repo.UpsertIssuance(ctx, rec); err != nil {
		return nil, Wrap(KindPersistence, "storing otp issuance", err)
	}
	return &Issuance{Code: code, ExpiresAt: expiresAt}, nil
}

// Verify checks a supplied code against the live issuance. Check order:
// missing issuance, lock, expiry, (single-use mode) consumption, then the
// hash itself via a constant-time compare. A mismatch bumps the attempt
// counter and locks the issuance at the threshold; the counter never
// decrements.
func (m *OTPManager) Verify(ctx context.Context, reportID uuid.UUID, role SignerRole, code string) (*SignatureRecord, error) {
	rec, err := m.repo.GetSignatureRecord(ctx, reportID, role)
	if err != nil {
		return nil, Wrap(KindPersistence, "loading signature record", err)
	}
	if rec == nil || rec.OTPHash == "" {
		return nil, E(KindOTPNotRequested, "no code has been requested for this signer")
	}
	if rec.OTPLockedAt != nil {
		return nil, E(KindOTPLocked, "too many incorrect attempts, request a new code")
	}
	if rec.OTPExpiresAt == nil || m.now().After(*rec.OTPExpiresAt) {
		return nil, E(KindOTPExpired, "code has expired, request a new one")
	}
	if m.singleUse && rec.OTPConsumedAt != nil {
		return nil, E(KindOTPNotRequested, "code already used, request a new one")
	}

	salt, err := hex.DecodeString(rec.OTPSalt)
	if err != nil {
		return nil, Wrap(KindPersistence, "decoding otp salt", err)
	}
	supplied := hashCode(code, salt)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(rec.OTPHash)) != 1 {
		attempts, locked, aerr := m.repo.RecordFailedAttempt(ctx, reportID, role, m.maxAttempts)
		if aerr != nil {
			return nil, Wrap(KindPersistence, "recording failed attempt", aerr)
		}
		if locked {
			return nil, E(KindOTPLocked, "too many incorrect attempts, request a new code")
		}
		return nil, E(KindOTPInvalid, fmt.Sprintf("incorrect code, %d attempts remaining", m.maxAttempts-attempts))
	}

	verifiedAt := m.now()
	if err := m.repo.MarkVerified(ctx, reportID, role, verifiedAt); err != nil {
		return nil, Wrap(KindPersistence, "marking code verified", err)
	}
	rec.OTPVerifiedAt = &verifiedAt
	return rec, nil
}

// Consume stamps the issuance used so it cannot authorize another submit.
// Only called when the single-use policy is on.
func (m *OTPManager) Consume(ctx context.Context, reportID uuid.UUID, role SignerRole) error {
	if err := m.repo.MarkConsumed(ctx, reportID, role, m.now()); err != nil {
		return Wrap(KindPersistence, "marking code consumed", err)
	}
	return nil
}

func (m *OTPManager) SingleUse() bool { return m.singleUse }
