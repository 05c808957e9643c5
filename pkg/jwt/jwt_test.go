package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestTokenSubjects(t *testing.T) {
	secret := "subject-secret"

	access, err := GenerateToken("user-1", time.Hour, secret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	refresh, err := GenerateRefreshToken("user-1", time.Hour, secret)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	claims, err := ValidateToken(access, secret)
	if err != nil {
		t.Fatalf("ValidateToken(access) error = %v", err)
	}
	if claims.Subject != SubjectAccess {
		t.Errorf("access subject = %q, want %q", claims.Subject, SubjectAccess)
	}

	claims, err = ValidateToken(refresh, secret)
	if err != nil {
		t.Fatalf("ValidateToken(refresh) error = %v", err)
	}
	if claims.Subject != SubjectRefresh {
		t.Errorf("refresh subject = %q, want %q", claims.Subject, SubjectRefresh)
	}
}

func TestValidateToken(t *testing.T) {
	userID := "test-user-id"
	secret := "validation-secret-key-32-chars"

	validToken, _ := GenerateToken(userID, time.Hour, secret)
	expiredToken, _ := GenerateToken(userID, -time.Hour, secret)
	unsigned, _ := gojwt.NewWithClaims(gojwt.SigningMethodNone, &Claims{UserID: userID}).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
	}{
		{"valid token", validToken, secret, false},
		{"expired token", expiredToken, secret, true},
		{"wrong secret", validToken, "wrong-secret", true},
		{"invalid token format", "invalid.token.format", secret, true},
		{"unsigned token", unsigned, secret, true},
		{"empty token", "", secret, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)

			if tt.wantErr {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.UserID != userID {
				t.Errorf("ValidateToken() userID = %v, want %v", claims.UserID, userID)
			}
		})
	}
}

func TestClaimsTimestamps(t *testing.T) {
	expiration := time.Hour

	before := time.Now().Add(-time.Second)
	token, err := GenerateToken("timestamp-user", expiration, "timestamp-secret")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(time.Second)

	claims, err := ValidateToken(token, "timestamp-secret")
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	issuedAt := claims.IssuedAt.Time
	if issuedAt.Before(before) || issuedAt.After(after) {
		t.Errorf("IssuedAt out of range: got %v, range [%v, %v]", issuedAt, before, after)
	}

	expiresAt := claims.ExpiresAt.Time
	if expiresAt.Before(before.Add(expiration)) || expiresAt.After(after.Add(expiration)) {
		t.Errorf("ExpiresAt out of range: got %v", expiresAt)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	secret := "benchmark-secret-key"
	token, _ := GenerateToken("benchmark-user", 15*time.Minute, secret)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token, secret); err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
