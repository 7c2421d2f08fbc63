package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()

	codec, err := NewCodec(Config{
		AccessSecret:  []byte("access-secret-0123456789abcdef"),
		RefreshSecret: []byte("refresh-secret-0123456789abcdef"),
		Issuer:        "authcore-test",
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func TestNewCodec_RejectsSharedSecret(t *testing.T) {
	_, err := NewCodec(Config{
		AccessSecret:  []byte("same-secret"),
		RefreshSecret: []byte("same-secret"),
	})
	if err == nil {
		t.Fatal("expected error for identical access/refresh secrets")
	}
}

func TestVerify_RoundTripAccess(t *testing.T) {
	codec := testCodec(t)

	issued, err := codec.IssueAccess(Claims{
		UserID:       "u1",
		Email:        "a@b.com",
		Role:         "viewer",
		SessionID:    "s1",
		TokenVersion: 3,
	}, time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	claims, err := codec.Verify(issued, KindAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "a@b.com" || claims.Role != "viewer" {
		t.Fatalf("claims did not round-trip: %+v", claims)
	}
	if claims.SessionID != "s1" || claims.TokenVersion != 3 {
		t.Fatalf("session claims did not round-trip: %+v", claims)
	}
}

func TestVerify_WrongKind(t *testing.T) {
	codec := testCodec(t)

	refresh, err := codec.IssueRefresh(Claims{UserID: "u1", SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueRefresh failed: %v", err)
	}

	if _, err := codec.Verify(refresh, KindAccess); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind for refresh-as-access, got %v", err)
	}

	access, err := codec.IssueAccess(Claims{UserID: "u1", SessionID: "s1"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := codec.Verify(access, KindRefresh); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind for access-as-refresh, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	codec := testCodec(t)

	base := time.Now()
	codec.Now = func() time.Time { return base }

	issued, err := codec.IssueAccess(Claims{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	codec.Now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := codec.Verify(issued, KindAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerify_FutureIssuedAtRejected(t *testing.T) {
	codec := testCodec(t)

	base := time.Now()
	codec.Now = func() time.Time { return base.Add(5 * time.Minute) }
	issued, err := codec.IssueAccess(Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	// Verification clock sits 5 minutes behind issuance, well past the
	// 30s skew tolerance.
	codec.Now = func() time.Time { return base }
	if _, err := codec.Verify(issued, KindAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for future iat, got %v", err)
	}
}

func TestVerify_SmallSkewTolerated(t *testing.T) {
	codec := testCodec(t)

	base := time.Now()
	codec.Now = func() time.Time { return base.Add(10 * time.Second) }
	issued, err := codec.IssueAccess(Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	codec.Now = func() time.Time { return base }
	if _, err := codec.Verify(issued, KindAccess); err != nil {
		t.Fatalf("10s skew should be tolerated, got %v", err)
	}
}

func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	codec := testCodec(t)

	claims := Claims{
		UserID: "u1",
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "authcore-test",
		},
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenStr, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none failed: %v", err)
	}

	if _, err := codec.Verify(tokenStr, KindAccess); err == nil {
		t.Fatal("expected rejection of alg=none token")
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	codec := testCodec(t)

	issued, err := codec.IssueAccess(Claims{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	parts := strings.Split(issued, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", issued)
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]

	if _, err := codec.Verify(tampered, KindAccess); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	codec := testCodec(t)

	for _, input := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		if _, err := codec.Verify(input, KindAccess); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", input, err)
		}
	}
}
