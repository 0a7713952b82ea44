package signing

import (
	"context"
	"crypto/subtle"
	"time"

	"homehub/service-portal/service-portal-backend/pkg/session"
)

// Credential carries whatever the caller presented. Which field matters
// depends on the signer role being claimed.
type Credential struct {
	Bearer      string
	ClientToken string
}

// Authorizer answers "may this caller act as signer role X for report R".
// Every workflow entry point runs the check itself; nothing is cached
// between calls.
type Authorizer interface {
	Authorize(ctx context.Context, report *Report, cred Credential) error
}

// ProfessionalAuthorizer resolves the bearer credential to a live session
// and requires the session owner to be the report's author.
type ProfessionalAuthorizer struct {
	sessions session.Store
	now      func() time.Time
}

func NewProfessionalAuthorizer(sessions session.Store) *ProfessionalAuthorizer {
	return &ProfessionalAuthorizer{sessions: sessions, now: time.Now}
}

func (a *ProfessionalAuthorizer) Authorize(ctx context.Context, report *Report, cred Credential) error {
	if cred.Bearer == "" {
		return E(KindAuthentication, "missing bearer credential")
	}
	sess, err := a.sessions.Resolve(ctx, cred.Bearer)
	if err != nil {
		return Wrap(KindPersistence, "resolving session", err)
	}
	if sess == nil || sess.RevokedAt != nil || a.now().After(sess.ExpiresAt) {
		return E(KindAuthentication, "invalid or expired session")
	}
	if sess.OwnerID != report.AuthoredBy {
		return E(KindAuthorization, "report belongs to another professional")
	}
	return nil
}

// ClientAuthorizer checks the opaque share token minted into the report.
// The token is the unauthenticated client's only credential, so the
// comparison is constant-time.
type ClientAuthorizer struct{}

func NewClientAuthorizer() *ClientAuthorizer { return &ClientAuthorizer{} }

func (a *ClientAuthorizer) Authorize(ctx context.Context, report *Report, cred Credential) error {
	if cred.ClientToken == "" ||
		subtle.ConstantTimeCompare([]byte(cred.ClientToken), []byte(report.ClientSignToken)) != 1 {
		return E(KindAuthorization, "invalid signing token")
	}
	return nil
}
