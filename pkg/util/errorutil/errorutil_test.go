package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	t.Run("keeps wrapped domain errors", func(t *testing.T) {
		err := fmt.Errorf("approve: %w", NewAlreadyCheckedIn(nil))
		de := ToDomainError(err)
		require.NotNil(t, de)
		assert.Equal(t, CodeAlreadyCheckedIn, de.Code)
		assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	})

	t.Run("maps fiber errors by status", func(t *testing.T) {
		de := ToDomainError(fiber.NewError(http.StatusUnauthorized, "missing token"))
		assert.Equal(t, CodeUnauthorized, de.Code)
		assert.Equal(t, "missing token", de.Message)
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		de := ToDomainError(pgx.ErrNoRows)
		assert.Equal(t, CodeNotFound, de.Code)
		assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
	})

	t.Run("falls back to internal error", func(t *testing.T) {
		cause := errors.New("boom")
		de := ToDomainError(cause)
		assert.Equal(t, CodeInternal, de.Code)
		assert.ErrorIs(t, de, cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
		assert.NoError(t, MapError(nil))
	})
}

func TestNewMissingField(t *testing.T) {
	err := NewMissingField("batch", "phone_number")
	assert.True(t, HasCode(err, CodeMissingField))
	assert.Contains(t, err.Error(), "batch, phone_number")
	assert.Equal(t, []string{"batch", "phone_number"}, ToDomainError(err).Details["fields"])
}
