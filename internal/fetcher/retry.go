package fetcher

import "time"

// RetryPolicy decides whether a request that got a non-success status is
// sent again. failures counts the unsuccessful attempts so far (1 after the
// first one).
type RetryPolicy interface {
	Next(failures int) (delay time.Duration, again bool)
}

// Forever retries without limit at a fixed interval.
func Forever(interval time.Duration) RetryPolicy {
	return forever{interval: interval}
}

type forever struct {
	interval time.Duration
}

func (f forever) Next(int) (time.Duration, bool) {
	return f.interval, true
}

// Limited gives up after MaxAttempts requests. The delay starts at Initial
// and grows by Multiplier, never exceeding Max when Max is set.
type Limited struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

func (l Limited) Next(failures int) (time.Duration, bool) {
	if l.MaxAttempts > 0 && failures >= l.MaxAttempts {
		return 0, false
	}
	mult := l.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(l.Initial)
	for i := 1; i < failures; i++ {
		delay *= mult
		if l.Max > 0 && delay >= float64(l.Max) {
			return l.Max, true
		}
	}
	return time.Duration(delay), true
}

// PolicyFor maps configuration values to a policy: zero attempts keeps the
// retry-forever behaviour.
func PolicyFor(maxAttempts int, interval time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		return Forever(interval)
	}
	return Limited{
		MaxAttempts: maxAttempts,
		Initial:     interval,
		Max:         30 * time.Second,
		Multiplier:  2,
	}
}
