package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewString(t *testing.T) {
	id := NewString()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, NewString())
}

func TestNewToken(t *testing.T) {
	token := NewToken()

	assert.Len(t, token, 32)
	assert.NotContains(t, token, "-")
}
