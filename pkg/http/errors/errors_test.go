package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondValidationError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondValidationError(rr, ErrCodeValidationFailed, "category is required", "Category")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{Error: "validation_failed", Message: "category is required", Field: "Category"}, body)
}

func TestRespondInternalErrorOmitsField(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondInternalError(rr, "boom")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "field")
	assert.Contains(t, rr.Body.String(), ErrCodeInternalError)
}

func TestRespondStructError(t *testing.T) {
	type payload struct {
		Category string `validate:"required"`
	}
	v := validator.New()

	t.Run("field error", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RespondStructError(rr, v.Struct(payload{}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, ErrCodeValidationFailed, body.Error)
		assert.Equal(t, "Category", body.Field)
	})

	t.Run("plain error", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RespondStructError(rr, errors.New("bad shape"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, ErrorResponse{Error: ErrCodeValidationFailed, Message: "bad shape"}, body)
	})
}

func TestRespondMethodNotAllowedSetsAllow(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondMethodNotAllowed(rr, http.MethodPost)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
	assert.Contains(t, rr.Body.String(), ErrCodeInvalidRequest)
}

func TestRespondUpstreamError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondUpstreamError(rr, ErrCodeNoChoices, "model returned no alternatives")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{Error: ErrCodeNoChoices, Message: "model returned no alternatives"}, body)
}
