package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGuardExhaustsAfterCeiling(t *testing.T) {
	g := NewTradingGuard(5, 12*time.Hour, zap.NewNop())

	for i := 0; i < 5; i++ {
		assert.True(t, g.IsSafeToTrade(), "submission %d should be allowed", i)
	}
	assert.False(t, g.IsSafeToTrade())
	assert.Equal(t, 0, g.Credits())
}

func TestGuardResetsAfterWindow(t *testing.T) {
	g := NewTradingGuard(2, 12*time.Hour, zap.NewNop())

	current := time.Now()
	g.now = func() time.Time { return current }
	g.reset()

	assert.True(t, g.IsSafeToTrade())
	assert.True(t, g.IsSafeToTrade())
	assert.False(t, g.IsSafeToTrade())

	// One second short of the window: still refused.
	current = current.Add(12*time.Hour - time.Second)
	assert.False(t, g.IsSafeToTrade())

	// Window expired: credits reset to the ceiling and submission resumes.
	current = current.Add(time.Second)
	assert.True(t, g.IsSafeToTrade())
	assert.Equal(t, 1, g.Credits())
}
