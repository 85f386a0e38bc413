package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_SignUp(t *testing.T) {
	t.Run("registers the account and returns the new identity", func(t *testing.T) {
		// given
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v1/signup", r.URL.Path)
			w.Write([]byte(sessionBody("access-1", "refresh-1", 3600)))
		}))
		defer srv.Close()
		handler := NewHandler(NewClient(srv.URL, "anon-key"))

		body := `{"email":"ana@example.com","password":"secret","username":"ana","displayName":"Ana"}`
		request := httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(body))
		recorder := httptest.NewRecorder()

		// when
		handler.SignUp(recorder, request)

		// then
		require.Equal(t, http.StatusCreated, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `"id":"user-1"`)
		assert.Contains(t, recorder.Body.String(), `"username":"ana"`)
	})

	t.Run("rejects a request without credentials", func(t *testing.T) {
		handler := NewHandler(NewClient("http://unused", "anon-key"))

		request := httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(`{"username":"ana"}`))
		recorder := httptest.NewRecorder()

		handler.SignUp(recorder, request)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("maps a provider rejection to bad request", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"email already registered"}`))
		}))
		defer srv.Close()
		handler := NewHandler(NewClient(srv.URL, "anon-key"))

		body := `{"email":"ana@example.com","password":"secret"}`
		request := httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(body))
		recorder := httptest.NewRecorder()

		handler.SignUp(recorder, request)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}
