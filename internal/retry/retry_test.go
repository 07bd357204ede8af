package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name         string
		maxAttempts  int
		succeedOn    int
		wantOK       bool
		wantAttempts int
	}{
		{name: "first attempt", maxAttempts: 3, succeedOn: 1, wantOK: true, wantAttempts: 1},
		{name: "last attempt", maxAttempts: 3, succeedOn: 3, wantOK: true, wantAttempts: 3},
		{name: "exhausted", maxAttempts: 3, succeedOn: 10, wantOK: false, wantAttempts: 3},
		{name: "zero attempts runs once", maxAttempts: 0, succeedOn: 10, wantOK: false, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, ok := Run(context.Background(), Policy{MaxAttempts: tt.maxAttempts},
				func(_ context.Context, attempt int) (int, error) {
					calls++
					assert.Equal(t, calls, attempt)
					return attempt, nil
				},
				func(n int, err error) bool { return n >= tt.succeedOn })

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAttempts, calls)
			assert.Equal(t, calls, result)
		})
	}
}

func TestDoDefaultsToNilError(t *testing.T) {
	calls := 0
	ok := Do(context.Background(), Policy{MaxAttempts: 5}, func(context.Context, int) error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	})
	assert.True(t, ok)
	assert.Equal(t, 2, calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	ok := Do(ctx, Policy{MaxAttempts: 10, Delay: time.Hour}, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Policy{MaxAttempts: 1}.Validate())
	assert.Error(t, Policy{}.Validate())
	assert.Error(t, Policy{MaxAttempts: 1, Delay: -time.Second}.Validate())
}

func TestPermanentStopsRetrying(t *testing.T) {
	calls := 0
	notFound := errors.New("not found")
	ok := Do(context.Background(), Policy{MaxAttempts: 10}, func(context.Context, int) error {
		calls++
		return Permanent(notFound)
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(Permanent(notFound), notFound))
	assert.Nil(t, Permanent(nil))
}
