package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightnest/cleanops/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("client 1: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("quote: %w", shared.ErrInvalidTransition), http.StatusConflict},
		{shared.ErrPrecondition, http.StatusUnprocessableEntity},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.FieldError("email", "is required"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "is required", body.Errors["email"])
}
