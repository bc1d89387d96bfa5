package random

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_Entropy(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := Identifier()
		require.NoError(t, err)
		assert.Len(t, id, IdentifierBytes*2)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestUserCode_Format(t *testing.T) {
	re := regexp.MustCompile(`^[BCDFGHJKLMNPQRSTVWXZ]{4}-[BCDFGHJKLMNPQRSTVWXZ]{4}$`)
	for i := 0; i < 50; i++ {
		code, err := UserCode()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
	}
}

func TestNormalizeUserCode(t *testing.T) {
	assert.Equal(t, "BCDF-GHJK", NormalizeUserCode("bcdfghjk"))
	assert.Equal(t, "BCDF-GHJK", NormalizeUserCode(" bcdf-ghjk "))
	assert.Equal(t, "BCD", NormalizeUserCode("bcd"))
}
