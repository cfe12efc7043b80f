package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestPolicyDo(t *testing.T) {
	testCases := []struct {
		name         string
		failures     []error
		wantAttempts int
		wantErr      error
		wantExhaust  bool
	}{
		{name: "First attempt succeeds", wantAttempts: 1},
		{name: "Recovers on second attempt", failures: []error{errTransient}, wantAttempts: 2},
		{name: "Recovers on last attempt", failures: []error{errTransient, errTransient}, wantAttempts: 3},
		{name: "Exhausted", failures: []error{errTransient, errTransient, errTransient}, wantAttempts: 3, wantErr: errTransient, wantExhaust: true},
		{name: "Permanent error is not retried", failures: []error{errPermanent}, wantAttempts: 1, wantErr: errPermanent},
		{name: "Permanent after transient", failures: []error{errTransient, errPermanent}, wantAttempts: 2, wantErr: errPermanent},
	}

	policy := Policy{MaxAttempts: 3, Backoff: time.Millisecond}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			var retried []int

			err := policy.Do(context.Background(), func(ctx context.Context) error {
				attempts++
				if attempts <= len(tc.failures) {
					return tc.failures[attempts-1]
				}
				return nil
			}, isTransient, func(attempt int, err error) {
				retried = append(retried, attempt)
			})

			assert.Equal(t, tc.wantAttempts, attempts)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)

			var exhausted *ExhaustedError
			assert.Equal(t, tc.wantExhaust, errors.As(err, &exhausted))
			if tc.wantExhaust {
				assert.Equal(t, 3, exhausted.Attempts)
				assert.Equal(t, []int{1, 2, 3}, retried)
			}
		})
	}
}

func TestPolicyDoBackoffSpacing(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Backoff: 40 * time.Millisecond}

	var stamps []time.Time
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errTransient
	}, isTransient, nil)

	require.Error(t, err)
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 40*time.Millisecond)
	}
}

func TestPolicyDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, Backoff: time.Hour}

	attempts := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errTransient
	}, isTransient, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestPolicyDoZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Policy{}.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errTransient
	}, isTransient, nil)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, attempts)
}
