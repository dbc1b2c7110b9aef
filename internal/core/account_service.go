package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/notify"
	"aicaas.com/chatbot-backend/internal/store"
)

const (
	proPeriod         = 30 * 24 * time.Hour
	minPasswordLength = 6
	// bcrypt rejects input past 72 bytes.
	maxPasswordLength = 72
	expiryDateLayout  = "02/01/2006"
)

var (
	validate      = validator.New()
	passwordRules = fmt.Sprintf("min=%d,max=%d", minPasswordLength, maxPasswordLength)
)

type AccountService struct {
	db            *store.SQLiteStore
	authn         *auth.Authenticator
	notifier      *notify.Notifier
	signupCredits int
	now           func() time.Time
	log           *zap.SugaredLogger
}

func NewAccountService(db *store.SQLiteStore, authn *auth.Authenticator, notifier *notify.Notifier,
	signupCredits int, now func() time.Time, log *zap.SugaredLogger) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{db: db, authn: authn, notifier: notifier, signupCredits: signupCredits, now: now, log: log}
}

func (s *AccountService) Register(ctx context.Context, email, password, fullName string) (*store.User, error) {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, apperr.BadRequest("A valid email is required").Wrap(err)
	}
	// max counts runes; the byte check covers multi-byte passwords.
	if err := validate.Var(password, passwordRules); err != nil || len(password) > maxPasswordLength {
		return nil, apperr.BadRequest(fmt.Sprintf("Password must be %d to %d characters", minPasswordLength, maxPasswordLength))
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &store.User{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		PlanType:     store.PlanFree,
		Credits:      s.signupCredits,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("Email already registered")
		}
		return nil, err
	}
	s.notifier.Notify(user.Email, notify.TemplateWelcome, map[string]string{"name": displayName(user)})
	return user, nil
}

// Login answers every bad email/password combination the same way.
func (s *AccountService) Login(ctx context.Context, email, password, clientMeta string) (*auth.Issued, *store.User, error) {
	invalid := apperr.New(http.StatusUnauthorized, apperr.CodeUnauthenticated, "Invalid email or password")
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, invalid
	}
	if err != nil {
		return nil, nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, nil, invalid
	}
	issued, err := s.authn.Issue(ctx, user.ID, clientMeta)
	if err != nil {
		return nil, nil, err
	}
	s.log.Infow("user logged in", "user_id", user.ID, "session_id", issued.Session.ID)
	return issued, user, nil
}

func (s *AccountService) Logout(ctx context.Context, credential string) error {
	return s.authn.Revoke(ctx, credential)
}

func (s *AccountService) Rotate(ctx context.Context, credential string) (*auth.Issued, error) {
	return s.authn.Rotate(ctx, credential)
}

// ReapExpiredSessions deletes sessions past their expiry.
func (s *AccountService) ReapExpiredSessions(ctx context.Context) (int64, error) {
	return s.db.DeleteExpiredSessions(ctx, s.now())
}

func (s *AccountService) Me(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	return user, err
}

type Subscription struct {
	Plan      string  `json:"plan"`
	Usage     int     `json:"usage"`
	Limit     int     `json:"limit"`
	Percent   int     `json:"percent"`
	ExpiresAt *string `json:"expires_at"`
	Credits   int     `json:"credits"`
	UserName  string  `json:"user_name"`
	UserEmail string  `json:"user_email"`
}

func (s *AccountService) Subscription(ctx context.Context, userID string) (*Subscription, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	plan := EffectivePlan(user, now)
	limit := DailyLimit(plan)
	usage := UsedToday(user, now)

	sub := &Subscription{
		Plan:      plan,
		Usage:     usage,
		Limit:     limit,
		Percent:   min(usage*100/limit, 100),
		Credits:   user.Credits,
		UserName:  displayName(user),
		UserEmail: user.Email,
	}
	if user.ProExpiresAt != nil {
		expires := user.ProExpiresAt.Format(expiryDateLayout)
		sub.ExpiresAt = &expires
	}
	return sub, nil
}

// Upgrade grants pro for the next 30 days and emails a receipt.
func (s *AccountService) Upgrade(ctx context.Context, userID string) (time.Time, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	expires := s.now().UTC().Add(proPeriod)
	if err := s.db.UpdatePlan(ctx, user.ID, store.PlanPro, &expires); err != nil {
		return time.Time{}, err
	}
	s.notifier.Notify(user.Email, notify.TemplateProUpgraded, map[string]string{
		"name":    displayName(user),
		"expires": expires.Format(expiryDateLayout),
	})
	return expires, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(user *store.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return "User"
}
