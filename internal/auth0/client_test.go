package auth0

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClientProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			http.NotFound(w, r)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"sub":"auth0|rider","email":"rider@example.com","nickname":"wanjiru"}`))
		case "Bearer broken":
			w.Write([]byte(`{"email":"x@example.com"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient("unused.example.com").WithBaseURL(srv.URL)

	p, err := client.Profile(t.Context(), "good")
	require.NoError(t, err)
	require.Equal(t, "auth0|rider", p.Subject)
	require.Equal(t, "rider@example.com", p.Email)
	require.Equal(t, "wanjiru", p.DisplayName())

	_, err = client.Profile(t.Context(), "expired")
	require.ErrorIs(t, err, ErrTokenRejected)

	_, err = client.Profile(t.Context(), "broken")
	require.ErrorIs(t, err, ErrProfileUnavailable)
}

func TestFakeClient(t *testing.T) {
	fake := NewFakeClient()
	fake.Register("token", Profile{Subject: "rider", Name: " Amina "})

	p, err := fake.Profile(t.Context(), "token")
	require.NoError(t, err)
	require.Equal(t, "Amina", p.DisplayName())

	_, err = fake.Profile(t.Context(), "other")
	require.ErrorIs(t, err, ErrTokenRejected)
}
