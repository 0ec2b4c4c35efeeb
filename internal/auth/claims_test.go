package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseToken(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret, Issuer: "graylogic-core", TTL: time.Minute}

	token, err := GenerateToken("core", RoleAdmin, cfg)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := ParseToken(token, cfg)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "core" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "core")
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.Issuer != "graylogic-core" {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != time.Minute {
		t.Errorf("token lifetime = %v, want 1m", ttl)
	}
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret}
	token, err := GenerateToken("ops", RoleViewer, cfg)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token, cfg)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != defaultTTL {
		t.Errorf("token lifetime = %v, want %v", ttl, defaultTTL)
	}
}

func TestGenerateToken_Invalid(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret}

	if _, err := GenerateToken("x", RoleAdmin, TokenConfig{}); !errors.Is(err, ErrNoSecret) {
		t.Errorf("empty secret: error = %v, want ErrNoSecret", err)
	}
	if _, err := GenerateToken("", RoleAdmin, cfg); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty subject: error = %v, want ErrTokenInvalid", err)
	}
	if _, err := GenerateToken("x", Role("root"), cfg); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("unknown role: error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret, Issuer: "graylogic-core"}
	good, err := GenerateToken("core", RoleOperator, cfg)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	otherIssuer, err := GenerateToken("core", RoleOperator, TokenConfig{Secret: testSecret, Issuer: "someone-else"})
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "core",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "core"},
		Role:             RoleAdmin,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token without expiry: %v", err)
	}

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "core",
			Issuer:    "graylogic-core",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "superuser",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token with bad role: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"garbage", "not-a-valid-jwt", testSecret},
		{"wrong secret", good, "wrong-secret"},
		{"wrong issuer", otherIssuer, testSecret},
		{"none algorithm", noneAlg, testSecret},
		{"no expiry", noExpiry, testSecret},
		{"unknown role", badRole, testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, TokenConfig{Secret: tt.secret, Issuer: cfg.Issuer})
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseToken_Expired(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "core",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleViewer,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	_, err = ParseToken(expired, TokenConfig{Secret: testSecret})
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ParseToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestParseToken_NoSecret(t *testing.T) {
	if _, err := ParseToken("anything", TokenConfig{}); !errors.Is(err, ErrNoSecret) {
		t.Errorf("ParseToken() error = %v, want ErrNoSecret", err)
	}
}
