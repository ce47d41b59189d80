package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"potion_master/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const testKey = "test-signing-key"

type fakeOperators struct {
	created map[string]string
	byName  map[string]*models.Operator
	err     error
}

func (f *fakeOperators) Create(ctx context.Context, username, hash string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.created == nil {
		f.created = map[string]string{}
	}
	f.created[username] = hash
	return len(f.created), nil
}

func (f *fakeOperators) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[username], nil
}

func operator(t *testing.T, id int, name, password string) *models.Operator {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	return &models.Operator{ID: id, Username: name, PasswordHash: hash}
}

func TestAuthService_SignUpStoresHash(t *testing.T) {
	repo := &fakeOperators{}
	svc := NewAuthService(repo, testKey, time.Hour)

	id, err := svc.SignUp(context.Background(), "  bartender ", "shaken")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	hash := repo.created["bartender"]
	if hash == "shaken" || bcrypt.CompareHashAndPassword([]byte(hash), []byte("shaken")) != nil {
		t.Fatalf("password was not stored as bcrypt hash: %q", hash)
	}
}

func TestAuthService_SignUpRejects(t *testing.T) {
	tests := []struct {
		name, user, pass string
		repoErr          error
	}{
		{"empty password", "a", "   ", nil},
		{"empty username", "", "pw", nil},
		{"repo error", "a", "pw", errors.New("unique constraint")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(&fakeOperators{err: tt.repoErr}, testKey, time.Hour)
			if _, err := svc.SignUp(context.Background(), tt.user, tt.pass); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	repo := &fakeOperators{byName: map[string]*models.Operator{"op": operator(t, 7, "op", "letmein")}}
	svc := NewAuthService(repo, testKey, time.Hour)

	token, err := svc.GenerateToken(context.Background(), "op", "letmein")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	op, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if op.ID != 7 || op.Username != "op" {
		t.Fatalf("expected operator 7/op, got %+v", op)
	}
}

func TestAuthService_GenerateTokenErrors(t *testing.T) {
	repo := &fakeOperators{byName: map[string]*models.Operator{"op": operator(t, 1, "op", "right")}}
	svc := NewAuthService(repo, testKey, time.Hour)
	ctx := context.Background()

	if _, err := svc.GenerateToken(ctx, "ghost", "x"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
	if _, err := svc.GenerateToken(ctx, "op", "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}

	broken := NewAuthService(&fakeOperators{err: errors.New("db down")}, testKey, time.Hour)
	if _, err := broken.GenerateToken(ctx, "op", "right"); err == nil {
		t.Fatalf("expected repo error")
	}
}

func TestAuthService_ParseTokenRejects(t *testing.T) {
	svc := NewAuthService(&fakeOperators{}, testKey, time.Hour)
	now := time.Now()
	claimsFor := func(issuer string, id int, exp time.Time) *Claims {
		return &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   "op",
				ExpiresAt: jwt.NewNumericDate(exp),
				IssuedAt:  jwt.NewNumericDate(now),
			},
			OperatorID: id,
		}
	}
	claims := func(exp time.Time) *Claims { return claimsFor(tokenIssuer, 3, exp) }

	otherKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(now.Add(time.Hour))).SignedString([]byte("other"))
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(now.Add(-time.Hour))).SignedString([]byte(testKey))
	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("someone-else", 3, now.Add(time.Hour))).SignedString([]byte(testKey))
	noOperator, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor(tokenIssuer, 0, now.Add(time.Hour))).SignedString([]byte(testKey))

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	rs256, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, claims(now.Add(time.Hour))).SignedString(rsaKey)

	for name, tok := range map[string]string{
		"malformed":    "not-a-jwt",
		"wrong key":    otherKey,
		"expired":      expired,
		"non-hmac alg": rs256,
		"wrong issuer": foreign,
		"no operator":  noOperator,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ParseToken(tok); err == nil {
				t.Fatalf("expected %s token to be rejected", name)
			}
		})
	}
}

func TestAuthService_TTLDefault(t *testing.T) {
	svc := NewAuthService(&fakeOperators{}, testKey, 0)
	if svc.tokenTTL != defaultTokenTTL {
		t.Fatalf("expected default ttl, got %s", svc.tokenTTL)
	}
}
