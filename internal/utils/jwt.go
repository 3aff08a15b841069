package utils // package utils provides helpers for signing and verifying access tokens

import (
    "errors"
    "fmt"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// Roles carried in the "role" claim.  Buyers and sellers are both plain
// users; only ADMIN may manage events and force resale resolution.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// ErrInvalidToken is returned by ParseAccessToken for any token that fails
// signature, algorithm, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims is the verified identity extracted from an access token.
type Claims struct {
    Subject string
    Role    string
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The subject is
// the opaque user identifier used throughout the queue and resale market.
// The JWT includes subject (sub), role, expiration (exp) and issued at (iat).
func NewAccessToken(secret, userID, role string, ttl time.Duration) (AccessToken, error) {
    if userID == "" {
        return AccessToken{}, fmt.Errorf("access token: empty subject")
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub":  userID,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns its claims.  Only
// HMAC signatures are accepted and the subject must be a non-empty string.
func ParseAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
        }
        return []byte(secret), nil
    }, jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    sub, _ := mc["sub"].(string)
    if sub == "" {
        return Claims{}, ErrInvalidToken
    }
    role, _ := mc["role"].(string)
    if role == "" {
        role = RoleUser
    }
    return Claims{Subject: sub, Role: role}, nil
}
