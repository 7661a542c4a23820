package submit

import (
	"context"
	"time"

	"ojassist/internal/cli/api"
)

// Policy shapes the grading poll loop.
type Policy struct {
	MaxAttempts      int           `yaml:"maxAttempts" validate:"gte=1,lte=100"`
	TimeLimitFactor  float64       `yaml:"timeLimitFactor" validate:"gte=0"`
	Buffer           time.Duration `yaml:"buffer" validate:"gte=0"`
	Growth           float64       `yaml:"growth" validate:"gte=1"`
	Ceiling          time.Duration `yaml:"ceiling" validate:"gt=0"`
	DefaultTimeLimit time.Duration `yaml:"defaultTimeLimit" validate:"gte=0"`
}

// DefaultPolicy polls up to 10 times starting at 2x the time limit plus one
// second and growing by half while the judge is busy, up to 10 seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      10,
		TimeLimitFactor:  2,
		Buffer:           time.Second,
		Growth:           1.5,
		Ceiling:          10 * time.Second,
		DefaultTimeLimit: time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.TimeLimitFactor <= 0 {
		p.TimeLimitFactor = def.TimeLimitFactor
	}
	if p.Buffer < 0 {
		p.Buffer = 0
	}
	if p.Growth < 1 {
		p.Growth = def.Growth
	}
	if p.Ceiling <= 0 {
		p.Ceiling = def.Ceiling
	}
	if p.DefaultTimeLimit <= 0 {
		p.DefaultTimeLimit = def.DefaultTimeLimit
	}
	return p
}

// InitialInterval derives the first wait from the problem time limit.
// Tighter limits are polled sooner. The result never exceeds the ceiling.
func (p Policy) InitialInterval(timeLimit time.Duration) time.Duration {
	p = p.normalized()
	if timeLimit <= 0 {
		timeLimit = p.DefaultTimeLimit
	}
	wait := time.Duration(float64(timeLimit)*p.TimeLimitFactor) + p.Buffer
	if wait > p.Ceiling {
		return p.Ceiling
	}
	return wait
}

// NextInterval returns the wait before the next poll. A terminal verdict
// keeps the interval; an in-progress verdict or a failed query (empty
// verdict) grows it by Growth, capped at Ceiling.
func (p Policy) NextInterval(prev time.Duration, verdict api.Verdict) time.Duration {
	p = p.normalized()
	if verdict != "" && !verdict.InProgress() {
		return prev
	}
	if prev >= p.Ceiling {
		return p.Ceiling
	}
	next := time.Duration(float64(prev) * p.Growth)
	if next < prev {
		next = prev
	}
	if next > p.Ceiling {
		return p.Ceiling
	}
	return next
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
