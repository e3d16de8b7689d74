package security

import (
	"errors"
	"testing"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("test-key", "collab-auth")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	now := time.Now().UTC()
	token, err := signer.Sign(ports.AuthClaims{
		SubjectID: "inf-1",
		Role:      domain.RoleInfluencer,
		IssuedAt:  now,
		ExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	pubPEM, err := signer.PublicKeyPEM()
	if err != nil {
		t.Fatalf("export public key: %v", err)
	}
	verifier, err := NewJWTVerifier("collab-auth", pubPEM)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	claims, err := verifier.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SubjectID != "inf-1" || claims.Role != domain.RoleInfluencer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.KeyID != "test-key" {
		t.Fatalf("expected kid test-key, got %q", claims.KeyID)
	}
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("", "collab-auth")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	other, err := NewEphemeralJWTSigner("", "collab-auth")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	past := time.Now().UTC().Add(-2 * time.Hour)

	expired, err := signer.Sign(ports.AuthClaims{SubjectID: "m-1", Role: domain.RoleMerchant, IssuedAt: past, ExpiresAt: past.Add(time.Minute)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.ParseAndValidate(expired); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for expired token, got %v", err)
	}

	foreign, err := other.Sign(ports.AuthClaims{SubjectID: "m-1", Role: domain.RoleMerchant})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.ParseAndValidate(foreign); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for foreign key, got %v", err)
	}
}

func TestJWTRejectsSystemRole(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("", "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign(ports.AuthClaims{SubjectID: "x", Role: domain.RoleSystem})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.ParseAndValidate(token); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestVerifierCannotSign(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("", "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	pubPEM, err := signer.PublicKeyPEM()
	if err != nil {
		t.Fatalf("export public key: %v", err)
	}
	verifier, err := NewJWTVerifier("", pubPEM)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Sign(ports.AuthClaims{SubjectID: "x", Role: domain.RoleAdmin}); err == nil {
		t.Fatal("expected verify-only key set to refuse signing")
	}
}
