package testkit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/pkg/auth"
)

// Token signs an access token for userID with role.
func Token(t testing.TB, userID uint, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

// Request is one call against a handler. Body is JSON-encoded unless it is
// already an io.Reader.
type Request struct {
	Method  string
	Path    string
	Body    any
	Token   string
	Headers map[string]string
}

// Do serves req through h and returns the recorded response.
func Do(t testing.TB, h http.Handler, req Request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case io.Reader:
		body = b
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	r := httptest.NewRequest(req.Method, req.Path, body)
	if _, isReader := req.Body.(io.Reader); req.Body != nil && !isReader {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		r.Header.Set("Authorization", "Bearer "+req.Token)
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

// Envelope mirrors pkg/response's JSON body.
type Envelope struct {
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  map[string]any  `json:"errors"`
}

// Decode parses the envelope and, when dest is non-nil, its data field.
func Decode(t testing.TB, rec *httptest.ResponseRecorder, dest any) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	if dest != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, dest), "data: %s", string(env.Data))
	}
	return env
}
