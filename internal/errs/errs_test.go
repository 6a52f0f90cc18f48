package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := errors.New("timeout")
	err := Data("news.Signal", cause)

	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrExecution)
	assert.Equal(t, "news.Signal: data unavailable: timeout", err.Error())
	assert.Equal(t, ErrDataUnavailable, KindOf(fmt.Errorf("cycle: %w", err)))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("plain")))
	assert.Nil(t, KindOf(nil))
}

func TestConfigAndRisk(t *testing.T) {
	assert.ErrorIs(t, Config("watchlist is empty"), ErrInvalidConfig)

	err := Risk("CanTrade", "daily loss limit")
	assert.ErrorIs(t, err, ErrRiskBreach)
	assert.Contains(t, err.Error(), "daily loss limit")
	assert.Equal(t, "op: not found", E(ErrNotFound, "op", nil).Error())
}
