package client

import "time"

// backoffTable is the fixed wait schedule for the first failed attempts.
var backoffTable = [...]time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// maxBackoff caps every computed wait.
const maxBackoff = 60 * time.Second

// RetryBudget bounds how many consecutive failed connection attempts the
// client makes before giving up. The zero value is an exhausted bounded
// budget; construct budgets with Bounded or Unbounded.
type RetryBudget struct {
	unbounded bool
	max       int
}

// Bounded allows at most max consecutive failed attempts.
func Bounded(max int) RetryBudget {
	return RetryBudget{max: max}
}

// Unbounded retries forever.
func Unbounded() RetryBudget {
	return RetryBudget{unbounded: true}
}

// IsUnbounded reports whether the budget never runs out.
func (b RetryBudget) IsUnbounded() bool { return b.unbounded }

// Exhausted reports whether attempts consecutive failures have used up the
// budget.
func (b RetryBudget) Exhausted(attempts int) bool {
	return !b.unbounded && attempts >= b.max
}

// Delay returns the wait after the attempt-th consecutive failure
// (attempt >= 1). Bounded budgets index the fixed table, holding at its
// last value. Unbounded budgets follow the table, then grow exponentially
// up to the 60s cap.
func (b RetryBudget) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	if !b.unbounded {
		idx := attempt - 1
		if idx >= len(backoffTable) {
			idx = len(backoffTable) - 1
		}
		return minDuration(backoffTable[idx], maxBackoff)
	}

	if attempt <= len(backoffTable) {
		return minDuration(backoffTable[attempt-1], maxBackoff)
	}
	exp := attempt - 1
	if exp > 30 {
		exp = 30 // 2^30s is already far past the cap
	}
	return minDuration(time.Duration(1<<uint(exp))*time.Second, maxBackoff)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
