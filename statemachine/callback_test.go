package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

func callQuery() Query {
	return NewQuery().WithOn("ignite").WithFrom(parked).WithTo(idling)
}

func TestNewCallback_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewCallback("during", CallbackOptions{}, recorder("x"))
	require.ErrorIs(t, err, ErrInvalidCallbackType)

	_, err = NewCallback(CallbackBefore, CallbackOptions{})
	require.ErrorIs(t, err, ErrNoCallbackMethods)

	_, err = NewCallback(CallbackAround, CallbackOptions{}, recorder("x"))
	require.ErrorIs(t, err, ErrAroundWithoutProceed)

	_, err = NewCallback(CallbackBefore, CallbackOptions{
		BranchOptions: BranchOptions{From: matcher.Whitelist(parked), ExceptFrom: []string{idling}},
	}, recorder("x"))
	require.ErrorIs(t, err, ErrConflictingOptions)

	callback, err := NewCallback(CallbackAround, CallbackOptions{Do: aroundRecorder("do")}, "Wrap")
	require.NoError(t, err)
	assert.Len(t, callback.MethodNames(), 2)
	assert.Equal(t, "Wrap", callback.MethodNames()[0])
}

func TestCallback_Call(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("skips when the branch does not match", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackBefore, CallbackOptions{
			BranchOptions: BranchOptions{On: matcher.Whitelist("park")},
		}, recorder("before"))
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, Skipped, outcome)
		assert.Empty(t, v.events)
	})

	t.Run("runs methods in order", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackBefore, CallbackOptions{
			BranchOptions: BranchOptions{From: matcher.Whitelist(parked)},
			Methods:       []any{recorder("second")},
			Do:            recorder("third"),
		}, recorder("first"))
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, Continued, outcome)
		assert.Equal(t, []string{"first", "second", "third"}, v.events)
	})

	t.Run("halt stops the remaining methods", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackAfter, CallbackOptions{},
			recorder("first"),
			func(*vehicle) any { return Halt },
			recorder("never"),
		)
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, Halted, outcome)
		assert.Equal(t, []string{"first"}, v.events)
	})

	t.Run("terminator halts on matching results", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackBefore, CallbackOptions{
			Terminator: func(result any) bool { return result == false },
		},
			func(*vehicle) bool { return true },
			func(*vehicle) bool { return false },
			recorder("never"),
		)
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, Halted, outcome)
		assert.Empty(t, v.events)
	})

	t.Run("passes the object then arguments", func(t *testing.T) {
		t.Parallel()

		var got []any

		callback, err := NewCallback(CallbackBefore, CallbackOptions{}, func(v *vehicle, arg string) {
			got = []any{v, arg}
		})
		require.NoError(t, err)

		v := &vehicle{}
		_, err = callback.Call(ctx, nil, v, callQuery(), []any{"transition"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{v, "transition"}, got)
	})

	t.Run("bound methods receive only arguments", func(t *testing.T) {
		t.Parallel()

		bind := true

		var got string

		callback, err := NewCallback(CallbackBefore, CallbackOptions{BindToObject: &bind}, func(arg string) {
			got = arg
		})
		require.NoError(t, err)
		assert.True(t, callback.BindToObject())

		_, err = callback.Call(ctx, nil, &vehicle{}, callQuery(), []any{"transition"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "transition", got)
	})

	t.Run("method names resolve on the object", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackAfter, CallbackOptions{}, "Save")
		require.NoError(t, err)

		v := &vehicle{}
		_, err = callback.Call(ctx, nil, v, callQuery(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, v.saves)
	})

	t.Run("errors propagate", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackAfter, CallbackOptions{}, "Save")
		require.NoError(t, err)

		_, err = callback.Call(ctx, nil, &vehicle{saveErr: errSave}, callQuery(), nil, nil)
		require.ErrorIs(t, err, errSave)
	})
}

func TestCallback_Around(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("nests methods around the block", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackAround, CallbackOptions{}, aroundRecorder("outer"), aroundRecorder("inner"))
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, func() bool {
			v.record("block")

			return true
		})
		require.NoError(t, err)
		assert.Equal(t, Continued, outcome)
		assert.Equal(t, []string{"outer:pre", "inner:pre", "block", "inner:post", "outer:post"}, v.events)
	})

	t.Run("not yielding halts", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackAround, CallbackOptions{}, func(v *vehicle, _ func() bool) {
			v.record("refused")
		})
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, func() bool {
			v.record("block")

			return true
		})
		require.NoError(t, err)
		assert.Equal(t, Halted, outcome)
		assert.Equal(t, []string{"refused"}, v.events)
	})

	t.Run("halting after yielding keeps the work done", func(t *testing.T) {
		t.Parallel()

		callback, err := NewCallback(CallbackAround, CallbackOptions{}, func(v *vehicle, proceed func() bool) any {
			proceed()

			return Halt
		})
		require.NoError(t, err)

		v := &vehicle{}
		outcome, err := callback.Call(ctx, nil, v, callQuery(), nil, func() bool {
			v.record("block")

			return true
		})
		require.NoError(t, err)
		assert.Equal(t, Halted, outcome)
		assert.Equal(t, []string{"block"}, v.events)
	})

	t.Run("proceed reports a failed block", func(t *testing.T) {
		t.Parallel()

		var proceeded []bool

		callback, err := NewCallback(CallbackAround, CallbackOptions{}, func(_ *vehicle, proceed func() bool) {
			proceeded = append(proceeded, proceed(), proceed())
		})
		require.NoError(t, err)

		calls := 0
		outcome, err := callback.Call(ctx, nil, &vehicle{}, callQuery(), nil, func() bool {
			calls++

			return false
		})
		require.NoError(t, err)
		assert.Equal(t, Continued, outcome)
		assert.Equal(t, []bool{false, false}, proceeded)
		assert.Equal(t, 1, calls, "the continuation runs once")
	})
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	assert.True(t, Skipped.OK())
	assert.True(t, Continued.OK())
	assert.False(t, Halted.OK())
	assert.Equal(t, "halted", Halted.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
