package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionIDsAreSortable(t *testing.T) {
	prev := Decision()
	for i := 0; i < 100; i++ {
		next := Decision()
		require.Regexp(t, `^dec_[0-9A-HJKMNP-TV-Z]{26}$`, next)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestNewEmbedsCreationTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id, err := ulid.ParseStrict(New())
	require.NoError(t, err)
	assert.False(t, ulid.Time(id.Time()).Before(before))
}
