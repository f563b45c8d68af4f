package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownAccount means the token is well-formed but its subject no longer exists.
	ErrUnknownAccount = errors.New("unknown account")
)

// Principal is the authenticated caller. Admin flag and country come from the
// account row, not from token claims, so revoking admin takes effect at once.
type Principal struct {
	AccountID uuid.UUID
	IsAdmin   bool
	Country   string
}

type AccountLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Service validates the bearer tokens minted by the identity service. Both
// sides share an HS256 secret.
type Service interface {
	ValidateToken(ctx context.Context, token string) (*Principal, error)
	IssueToken(accountID uuid.UUID, ttl time.Duration) (string, error)
}

type service struct {
	accounts AccountLookup
	secret   []byte
}

func NewService(accounts AccountLookup, secret string) Service {
	return &service{accounts: accounts, secret: []byte(secret)}
}

var _ Service = (*service)(nil)

// IssueToken mints a token the way the identity service does. Used by tests
// and local tooling.
func (s *service) IssueToken(accountID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (*Principal, error) {
	var c jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	acc, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &Principal{AccountID: acc.ID, IsAdmin: acc.IsAdmin, Country: acc.Country}, nil
}
