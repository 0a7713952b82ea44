package signing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"homehub/service-portal/service-portal-backend/pkg/session"
)

func TestProfessionalAuthorizer(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	store := &fakeSessionStore{sessions: map[string]*session.Session{
		"good":    {ID: uuid.New(), OwnerID: owner, ExpiresAt: now.Add(time.Hour)},
		"expired": {ID: uuid.New(), OwnerID: owner, ExpiresAt: now.Add(-time.Hour)},
		"revoked": {ID: uuid.New(), OwnerID: owner, ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt},
		"other":   {ID: uuid.New(), OwnerID: stranger, ExpiresAt: now.Add(time.Hour)},
	}}
	auth := NewProfessionalAuthorizer(store)
	report := &Report{ID: uuid.New(), AuthoredBy: owner}
	ctx := context.Background()

	assert.NoError(t, auth.Authorize(ctx, report, Credential{Bearer: "good"}))

	cases := []struct {
		name   string
		bearer string
		want   ErrorKind
	}{
		{"missing credential", "", KindAuthentication},
		{"unknown token", "nope", KindAuthentication},
		{"expired session", "expired", KindAuthentication},
		{"revoked session", "revoked", KindAuthentication},
		{"wrong owner", "other", KindAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := auth.Authorize(ctx, report, Credential{Bearer: tc.bearer})
			assert.Equal(t, tc.want, KindOf(err))
		})
	}
}

func TestClientAuthorizer(t *testing.T) {
	auth := NewClientAuthorizer()
	report := &Report{ID: uuid.New(), ClientSignToken: "secret-token"}
	ctx := context.Background()

	assert.NoError(t, auth.Authorize(ctx, report, Credential{ClientToken: "secret-token"}))

	assert.Equal(t, KindAuthorization,
		KindOf(auth.Authorize(ctx, report, Credential{ClientToken: "secret-token2"})))
	assert.Equal(t, KindAuthorization,
		KindOf(auth.Authorize(ctx, report, Credential{ClientToken: "SECRET-TOKEN"})))
	assert.Equal(t, KindAuthorization,
		KindOf(auth.Authorize(ctx, report, Credential{})))
}
