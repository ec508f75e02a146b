package domain

import "fmt"

// Decision is the routing outcome of the quality gate.
type Decision int

const (
	// Proceed accepts the text and moves on to image synthesis.
	Proceed Decision = iota
	// Retry regenerates the diary text.
	Retry
	// ForceAccept keeps the text although it never reached the threshold.
	ForceAccept
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Retry:
		return "retry"
	case ForceAccept:
		return "force_accept"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// RetryPolicy bounds the regenerate loop.
type RetryPolicy struct {
	Threshold  float64
	MaxRetries int
}

// DefaultRetryPolicy returns the stock threshold of 0.7 and three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Threshold: 0.7, MaxRetries: 3}
}

// Validate rejects policies that cannot terminate or can never pass.
func (p RetryPolicy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("quality threshold %.2f outside [0, 1]", p.Threshold)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", p.MaxRetries)
	}
	return nil
}

// Decide maps a quality score and the retries already spent to the next route.
func Decide(score float64, retryCount int, p RetryPolicy) Decision {
	if score >= p.Threshold {
		return Proceed
	}
	if retryCount < p.MaxRetries {
		return Retry
	}
	return ForceAccept
}
