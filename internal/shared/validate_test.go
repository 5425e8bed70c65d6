package shared

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleInner struct {
	Days int `json:"days" validate:"gte=0"`
}

type sampleRequest struct {
	Name  string      `json:"name" validate:"required"`
	Email string      `json:"email" validate:"omitempty,email"`
	Inner sampleInner `json:"inner"`
}

func TestValidateStructUsesJSONFieldNames(t *testing.T) {
	err := ValidateStruct(sampleRequest{Email: "bad", Inner: sampleInner{Days: -1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["name"])
	assert.Equal(t, "must be a valid email", verr.Fields["email"])
	assert.Equal(t, "must be >= 0", verr.Fields["inner.days"])
}

func TestValidateStructPasses(t *testing.T) {
	assert.NoError(t, ValidateStruct(sampleRequest{Name: "ok"}))
}

func TestLineAmountRoundsToCents(t *testing.T) {
	got := LineAmount(decimal.RequireFromString("1.333"), decimal.RequireFromString("45"))
	assert.Equal(t, "59.99", got.StringFixed(2))
}

func TestFormatMoneyGroupsThousands(t *testing.T) {
	assert.Contains(t, FormatMoney(decimal.RequireFromString("1250")), "1,250.00")
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Paginate(items, NewPagination(2, 2, len(items))))
	assert.Empty(t, Paginate(items, NewPagination(9, 2, len(items))))
}
