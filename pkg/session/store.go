package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Session is the resolved proof of a professional's login. Issuance and
// refresh live in the account service; this package only consumes bearer
// tokens.
type Session struct {
	ID        uuid.UUID  `db:"id"`
	OwnerID   uuid.UUID  `db:"owner_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

type Store interface {
	// Resolve returns the session a bearer token points at, or nil when
	// the token is malformed, forged or unknown. Callers decide what an
	// expired or revoked session means.
	Resolve(ctx context.Context, bearer string) (*Session, error)
}

type sqlStore struct {
	db     *sqlx.DB
	secret []byte
}

func NewStore(db *sqlx.DB, secret []byte) Store {
	return &sqlStore{db: db, secret: secret}
}

func (s *sqlStore) Resolve(ctx context.Context, bearer string) (*Session, error) {
	token, err := jwt.Parse(bearer, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil
	}
	sid, _ := claims["sid"].(string)
	sessionID, err := uuid.Parse(sid)
	if err != nil {
		return nil, nil
	}

	var sess Session
	err = s.db.GetContext(ctx, &sess,
		"SELECT id, owner_id, expires_at, revoked_at FROM sessions WHERE id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
