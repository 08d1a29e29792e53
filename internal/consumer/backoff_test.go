package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffFor_DefaultCurve(t *testing.T) {
	t.Parallel()
	// 30m base, 5 attempts: the historical production settings.
	base := 30 * time.Minute
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 112 * time.Second}, // 112.5s truncated to whole seconds
		{2, 225 * time.Second},
		{3, 450 * time.Second},
		{4, 900 * time.Second},
		{5, 1800 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, backoffFor(tc.attempts, 5, base), "attempts=%d", tc.attempts)
	}
}

func TestBackoffFor_DoublesPerAttempt(t *testing.T) {
	t.Parallel()
	// A base that divides cleanly so truncation cannot mask the ratio.
	base := 1600 * time.Second
	for a := 1; a < 5; a++ {
		lower := backoffFor(a, 5, base)
		higher := backoffFor(a+1, 5, base)
		assert.Equal(t, 2*lower, higher, "attempts %d -> %d", a, a+1)
	}
}

func TestBackoffFor_FinalAttemptGetsFullBase(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 30*time.Minute, backoffFor(5, 5, 30*time.Minute))
	assert.Equal(t, time.Hour, backoffFor(3, 3, time.Hour))
}

func TestBackoffFor_TruncatesToWholeSeconds(t *testing.T) {
	t.Parallel()
	// 3s × 0.5 = 1.5s → 1s.
	assert.Equal(t, time.Second, backoffFor(1, 2, 3*time.Second))
}

func TestBackoffFor_ClampsToZero(t *testing.T) {
	t.Parallel()
	// Far from the cap the share underflows a second entirely.
	assert.Equal(t, time.Duration(0), backoffFor(0, 62, time.Second))
}
