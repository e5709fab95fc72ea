package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunQueryNow(t *testing.T) {
	v, err := RunQuery(context.Background(), Now[int]{Value: 7})
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestRunQueryLater(t *testing.T) {
	v, err := RunQuery(context.Background(), Later[string]{Thunk: func() (string, error) {
		return "ok", nil
	}})
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	boom := errors.New("boom")
	_, err = RunQuery(context.Background(), Later[string]{Thunk: func() (string, error) {
		return "", boom
	}})
	require.ErrorIs(t, err, boom)
}

func TestRunQueryAsyncFirstCompletionWins(t *testing.T) {
	q := Async[int]{Register: func(ctx context.Context, ok func(int), fail func(error)) {
		go func() {
			ok(1)
			ok(2)
			fail(errors.New("ignored"))
		}()
	}}
	v, err := RunQuery(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestRunQueryAsyncFailure(t *testing.T) {
	boom := errors.New("boom")
	q := Async[int]{Register: func(ctx context.Context, ok func(int), fail func(error)) {
		go fail(boom)
	}}
	_, err := RunQuery(context.Background(), q)
	require.ErrorIs(t, err, boom)
}

func TestRunQueryAsyncCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := Async[int]{Register: func(ctx context.Context, ok func(int), fail func(error)) {
		// never completes
	}}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := RunQuery(ctx, q)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunQueryNilThunk(t *testing.T) {
	_, err := RunQuery(context.Background(), Later[int]{})
	require.ErrorIs(t, err, ErrNilQuery)
	_, err = RunQuery(context.Background(), Async[int]{})
	require.ErrorIs(t, err, ErrNilQuery)
}
