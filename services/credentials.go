package services

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

const (
	FirestoreAudience = "https://firestore.googleapis.com/"
	tokenLifetime     = time.Hour
	tokenRefreshSkew  = 5 * time.Minute
	// Anything earlier means the clock was never synchronised
	minSaneUnixTime = 1600000000
)

// ErrClockNotSet is returned when the system clock is too far in the past to sign a token
var ErrClockNotSet = errors.New("system clock not synchronised")

// ServiceAccount is the subset of a Google service-account key file the issuer needs
type ServiceAccount struct {
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
}

// ParseServiceAccount decodes a service-account JSON key
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("service account is missing client_email or private_key")
	}
	return &sa, nil
}

// CredentialIssuer signs short-lived self-issued JWTs for the document
// store and caches them until five minutes before expiry. It satisfies
// oauth2.TokenSource so it can be handed straight to the client SDK.
type CredentialIssuer struct {
	account  *ServiceAccount
	key      *rsa.PrivateKey
	audience string
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

var _ oauth2.TokenSource = (*CredentialIssuer)(nil)

// NewCredentialIssuer parses the account's private key; now may be nil
func NewCredentialIssuer(account *ServiceAccount, audience string, now func() time.Time) (*CredentialIssuer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if audience == "" {
		audience = FirestoreAudience
	}
	if now == nil {
		now = time.Now
	}
	return &CredentialIssuer{account: account, key: key, audience: audience, now: now}, nil
}

// Token returns the cached credential or signs a fresh one
func (c *CredentialIssuer) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Unix() < minSaneUnixTime {
		return nil, ErrClockNotSet
	}
	if c.token == "" || !now.Before(c.expiresAt.Add(-tokenRefreshSkew)) {
		if err := c.signLocked(now); err != nil {
			return nil, err
		}
	}
	return &oauth2.Token{
		AccessToken: c.token,
		TokenType:   "Bearer",
		Expiry:      c.expiresAt,
	}, nil
}

// Invalidate drops the cached credential so the next Token call re-signs
func (c *CredentialIssuer) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

func (c *CredentialIssuer) signLocked(now time.Time) error {
	exp := now.Add(tokenLifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    c.account.ClientEmail,
		Subject:   c.account.ClientEmail,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = c.account.PrivateKeyID

	signed, err := tok.SignedString(c.key)
	if err != nil {
		return fmt.Errorf("sign credential: %w", err)
	}
	c.token = signed
	c.expiresAt = exp
	return nil
}
