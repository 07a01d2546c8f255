package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/tournament-settlement/models"
	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestAuthenticateAndAuthorize(t *testing.T) {
	var got models.Actor
	protected := Authenticate(testSecret)(Authorize(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := ActorFromContext(r.Context())
		if err != nil {
			t.Errorf("ActorFromContext: %v", err)
		}
		got = actor
		w.WriteHeader(http.StatusNoContent)
	})))

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), jwt.MapClaims{"user_id": 1, "role": "ADMIN", "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 1, "role": "ADMIN", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"user role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 7, "role": "USER", "exp": exp}), http.StatusForbidden},
		{"unknown role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 7, "role": "ROOT", "exp": exp}), http.StatusUnauthorized},
		{"admin", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 3, "role": "ADMIN", "exp": exp}), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payouts/x/approve", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
	if got.UserID != 3 || got.Role != models.RoleAdmin {
		t.Errorf("actor = %+v, want admin 3", got)
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	tests := []struct {
		name    string
		claim   interface{}
		want    int
		wantErr bool
	}{
		{"number", float64(42), 42, false},
		{"string", "42", 42, false},
		{"fraction", 4.5, 0, true},
		{"zero", float64(0), 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithClaims(httptest.NewRequest(http.MethodGet, "/", nil).Context(), jwt.MapClaims{"user_id": tt.claim})
			got, err := GetUserIDFromContext(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("id = %d, want %d", got, tt.want)
			}
		})
	}
}
