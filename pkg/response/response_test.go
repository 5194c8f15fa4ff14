package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/pkg/orm"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestFailCarriesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Fail(rec, http.StatusConflict, "insufficient_stock", "not enough stock for Galaxy S24 - Black")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "insufficient_stock", body["code"])
	assert.EqualValues(t, 409, body["status"])
}

func TestPaginatedWrapsItems(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Paginated(rec, []string{"a", "b"}, orm.Pagination{Page: 1, Limit: 2, Total: 3, LastPage: 2})

	body := decode(t, rec)
	data := body["data"].(map[string]any)
	assert.Len(t, data["items"], 2)
	assert.EqualValues(t, 2, data["pagination"].(map[string]any)["last_page"])
}

func TestErrorDerivesCodeFromStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Forbidden(rec)
	assert.Equal(t, "forbidden", decode(t, rec)["code"])

	rec = httptest.NewRecorder()
	response.ValidationError(rec, map[string]string{"items[0].quantity": "must be at least 1"})
	body := decode(t, rec)
	assert.Equal(t, "validation_failed", body["code"])
	assert.Contains(t, body["errors"], "items[0].quantity")

	assert.Equal(t, "internal_error", response.CodeFor(http.StatusBadGateway))
	assert.Equal(t, "error", response.CodeFor(http.StatusTeapot))
}
