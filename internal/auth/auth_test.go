package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const secret = "test-secret"

func TestIssueAndValidateToken(t *testing.T) {
	caller := Caller{ID: uuid.New(), Role: RoleDoctor}

	token, err := IssueToken(secret, caller, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != caller {
		t.Errorf("expected %+v, got %+v", caller, got)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, _ := IssueToken(secret, Caller{ID: uuid.New(), Role: RolePatient}, time.Hour)

	if _, err := ValidateToken(token, "other"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	token, _ := IssueToken(secret, Caller{ID: uuid.New(), Role: RolePatient}, -time.Minute)

	if _, err := ValidateToken(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateToken_RejectsSystemRole(t *testing.T) {
	token, _ := IssueToken(secret, Caller{ID: uuid.New(), Role: RoleSystem}, time.Hour)

	if _, err := ValidateToken(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected system role to be rejected, got %v", err)
	}
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{UserID: uuid.NewString(), Role: RoleAdmin}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ValidateToken(signed, secret); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	caller := Caller{ID: uuid.New(), Role: RolePatient}
	token, _ := IssueToken(secret, caller, time.Hour)

	var seen Caller
	h := Middleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	if seen != caller {
		t.Errorf("expected caller %+v in context, got %+v", caller, seen)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		role Role
		want int
	}{
		{RoleAdmin, http.StatusNoContent},
		{RoleDoctor, http.StatusForbidden},
		{RolePatient, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodPost, "/admin/db/indexes", nil)
		req = req.WithContext(WithCaller(req.Context(), Caller{ID: uuid.New(), Role: tc.role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("role %s: expected %d, got %d", tc.role, tc.want, rec.Code)
		}
	}
}
