package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds how often a failed model call is repeated.
type RetryPolicy struct {
	Attempts  uint          `mapstructure:"attempts" json:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay" json:"base_delay"`
	MaxJitter time.Duration `mapstructure:"max_jitter" json:"max_jitter"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 300 * time.Millisecond, MaxJitter: 250 * time.Millisecond}
}

// ErrPermanent marks an error that retrying cannot fix (bad key, bad request).
var ErrPermanent = errors.New("permanent model error")

type retrying struct {
	Engine
	policy RetryPolicy
	logger *slog.Logger
}

// Retrying wraps e so that Generate is retried with exponential backoff plus jitter.
// Errors wrapping ErrPermanent and context cancellation stop immediately.
func Retrying(e Engine, policy RetryPolicy, logger *slog.Logger) Engine {
	if policy.Attempts <= 1 {
		return e
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{Engine: e, policy: policy, logger: logger}
}

func (r *retrying) Generate(ctx context.Context, req Request) (string, error) {
	var out string
	err := retry.Do(
		func() error {
			text, err := r.Engine.Generate(ctx, req)
			if err != nil {
				if errors.Is(err, ErrPermanent) || contextErr(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.policy.Attempts),
		retry.Delay(r.policy.BaseDelay),
		retry.MaxJitter(r.policy.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("model call failed, retrying",
				"engine", r.Engine.Name(), "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

var _ Engine = (*retrying)(nil)

// contextErr reports whether err came from the caller's context rather than the model.
func contextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
