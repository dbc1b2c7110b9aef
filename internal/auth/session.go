package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/store"
)

const secretBytes = 32

// SessionStore is the slice of the store the authenticator needs.
type SessionStore interface {
	CreateSession(ctx context.Context, session *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Authenticator issues and verifies opaque "<session-id>:<secret>" credentials.
// Only a bcrypt hash of the secret is stored.
type Authenticator struct {
	store SessionStore
	ttl   time.Duration
	cost  int
	now   func() time.Time

	// dummyHash is compared against on unknown session ids so a miss costs
	// the same bcrypt work as a wrong secret.
	dummyHash []byte
	compare   func(hash, secret []byte) error
}

type Option func(*Authenticator)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithHashCost sets the bcrypt cost for session secrets.
func WithHashCost(cost int) Option {
	return func(a *Authenticator) { a.cost = cost }
}

func NewAuthenticator(st SessionStore, ttl time.Duration, opts ...Option) *Authenticator {
	a := &Authenticator{store: st, ttl: ttl, cost: bcrypt.DefaultCost, now: time.Now, compare: bcrypt.CompareHashAndPassword}
	for _, opt := range opts {
		opt(a)
	}
	a.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no-such-session"), a.cost)
	return a
}

// Issued is a freshly created session and the credential to hand to the client.
type Issued struct {
	Credential string
	Session    *store.Session
}

func (a *Authenticator) Issue(ctx context.Context, userID, clientMeta string) (*Issued, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	hash, err := hashWithCost(secret, a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash session secret: %w", err)
	}

	now := a.now().UTC()
	session := &store.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		SecretHash: hash,
		ClientMeta: clientMeta,
		CreatedAt:  now,
		ExpiresAt:  now.Add(a.ttl),
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &Issued{Credential: session.ID + ":" + secret, Session: session}, nil
}

// Authenticate returns the session behind a credential. Every failure,
// whatever its cause, is the same Unauthenticated error. Expired rows are
// left in place for the reaper.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*store.Session, error) {
	id, secret, ok := ParseCredential(credential)
	if !ok {
		return nil, apperr.Unauthenticated()
	}
	session, err := a.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = a.compare(a.dummyHash, []byte(secret))
			return nil, apperr.Unauthenticated()
		}
		return nil, err
	}
	if a.compare([]byte(session.SecretHash), []byte(secret)) != nil {
		return nil, apperr.Unauthenticated()
	}
	if !a.now().Before(session.ExpiresAt) {
		return nil, apperr.Unauthenticated()
	}
	return session, nil
}

// Revoke deletes the session behind a valid credential.
func (a *Authenticator) Revoke(ctx context.Context, credential string) error {
	session, err := a.Authenticate(ctx, credential)
	if err != nil {
		return err
	}
	return a.store.DeleteSession(ctx, session.ID)
}

// Rotate swaps a valid credential for a new one, carrying over the client metadata.
func (a *Authenticator) Rotate(ctx context.Context, credential string) (*Issued, error) {
	session, err := a.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	issued, err := a.Issue(ctx, session.UserID, session.ClientMeta)
	if err != nil {
		return nil, err
	}
	if err := a.store.DeleteSession(ctx, session.ID); err != nil {
		return nil, err
	}
	return issued, nil
}

// ParseCredential splits "<session-id>:<secret>", accepting an optional
// "Bearer " prefix. The id must be a UUID and the secret non-empty.
func ParseCredential(raw string) (id, secret string, ok bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	id, secret, found := strings.Cut(raw, ":")
	if !found || secret == "" {
		return "", "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", "", false
	}
	return id, secret, true
}
