package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// JWTKeys verifies RS256 bearer tokens and, when a private key is present,
// mints them for operator tooling and tests.
type JWTKeys struct {
	kid        string
	issuer     string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewJWTVerifier builds a verify-only key set from the identity service's
// public key.
func NewJWTVerifier(issuer, publicKeyPEM string) (*JWTKeys, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, errors.New("jwt public key is required")
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTKeys{issuer: issuer, publicKey: pub}, nil
}

func NewJWTSigner(kid, issuer, privateKeyPEM string) (*JWTKeys, error) {
	if kid == "" {
		return nil, errors.New("jwt key id (kid) is required")
	}
	if strings.TrimSpace(privateKeyPEM) == "" {
		return nil, errors.New("jwt private key is required")
	}
	priv, err := parseRSAPrivate(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &JWTKeys{
		kid:        kid,
		issuer:     issuer,
		privateKey: priv,
		publicKey:  &priv.PublicKey,
	}, nil
}

// NewEphemeralJWTSigner creates an in-memory keypair for local runs and tests.
func NewEphemeralJWTSigner(kid, issuer string) (*JWTKeys, error) {
	if kid == "" {
		kid = "ephemeral-key-1"
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &JWTKeys{
		kid:        kid,
		issuer:     issuer,
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
	}, nil
}

func (k *JWTKeys) CanSign() bool {
	return k.privateKey != nil
}

type escrowJWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (k *JWTKeys) Sign(claims ports.AuthClaims) (string, error) {
	if k.privateKey == nil {
		return "", errors.New("jwt key set has no private key")
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = issuedAt.Add(time.Hour)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, escrowJWTClaims{
		UserID: claims.SubjectID,
		Role:   string(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.SubjectID,
			Issuer:    k.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	token.Header["kid"] = k.kid
	return token.SignedString(k.privateKey)
}

func (k *JWTKeys) ParseAndValidate(raw string) (ports.AuthClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if k.issuer != "" {
		options = append(options, jwt.WithIssuer(k.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &escrowJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return k.publicKey, nil
	}, options...)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*escrowJWTClaims)
	if !ok || !parsed.Valid {
		return ports.AuthClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthenticated)
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return ports.AuthClaims{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	role := domain.ParseRole(claims.Role)
	if role == "" || role == domain.RoleSystem {
		return ports.AuthClaims{}, fmt.Errorf("%w: unsupported role %q", domain.ErrForbidden, claims.Role)
	}

	kid, _ := parsed.Header["kid"].(string)
	out := ports.AuthClaims{
		SubjectID: subject,
		Role:      role,
		KeyID:     kid,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// PublicKeyPEM exports the verifying key, e.g. to hand an ephemeral key to
// the API process.
func (k *JWTKeys) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.publicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
