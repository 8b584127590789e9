package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func sign(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuth(t *testing.T) {
	var gotID int64
	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := sign(t, jwt.MapClaims{"user_id": 42, "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, testSecret)
	expired := sign(t, jwt.MapClaims{"user_id": 42, "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, testSecret)
	noExp := sign(t, jwt.MapClaims{"user_id": 42}, jwt.SigningMethodHS256, testSecret)
	otherKey := sign(t, jwt.MapClaims{"user_id": 42, "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte("other"))
	noUser := sign(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, testSecret)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"no expiry", "Bearer " + noExp, http.StatusUnauthorized},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized},
		{"no user", "Bearer " + noUser, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		gotID = 0
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, rec.Code)
		}
		if tt.want == http.StatusNoContent && gotID != 42 {
			t.Errorf("%s: expected user 42 on context, got %d", tt.name, gotID)
		}
	}
}
