package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("dashboard", RoleOperator, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "dashboard" || claims.Role != RoleOperator {
		t.Errorf("claims = %q/%q", claims.Subject, claims.Role)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 15*time.Minute {
		t.Errorf("lifetime = %v, want 15m", ttl)
	}
}

func TestGenerateToken_Defaults(t *testing.T) {
	if _, err := GenerateToken("x", RoleViewer, "", time.Minute); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("GenerateToken(empty secret) error = %v", err)
	}

	token, err := GenerateToken("x", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTokenTTL {
		t.Errorf("lifetime = %v, want %v", ttl, DefaultTokenTTL)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	sign := func(c Claims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Subject:   "x",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	good, _ := GenerateToken("x", RoleViewer, testSecret, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", good + ""},
		{"expired", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}, Role: RoleViewer}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing subject", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, Role: RoleViewer}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"unknown role", sign(Claims{RegisteredClaims: valid, Role: "root"}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"none algorithm", sign(Claims{RegisteredClaims: valid, Role: RoleViewer}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := testSecret
			if tt.name == "wrong secret" {
				secret = "another-secret-key-for-jwt-signing"
			}
			if _, err := ParseToken(tt.token, secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
