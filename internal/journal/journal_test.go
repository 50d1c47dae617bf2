package journal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournal_Atomic(t *testing.T) {
	t.Parallel()

	t.Run("reverts writes in reverse order on error", func(t *testing.T) {
		t.Parallel()

		j := New()
		state := []int{}
		set := func(v int) {
			prev := append([]int(nil), state...)
			state = append(state, v)
			j.Record(func() { state = prev })
		}

		err := j.Atomic(func() error {
			set(1)
			set(2)
			return errors.New("boom")
		})
		require.Error(t, err)
		require.Empty(t, state)
		require.Equal(t, 0, j.Depth())
	})

	t.Run("keeps writes on success", func(t *testing.T) {
		t.Parallel()

		j := New()
		x := 0
		require.NoError(t, j.Atomic(func() error {
			x = 5
			j.Record(func() { x = 0 })
			return nil
		}))
		require.Equal(t, 5, x)
	})

	t.Run("outer revert undoes committed inner snapshot", func(t *testing.T) {
		t.Parallel()

		j := New()
		x := 0
		err := j.Atomic(func() error {
			require.NoError(t, j.Atomic(func() error {
				x = 1
				j.Record(func() { x = 0 })
				return nil
			}))
			return errors.New("outer failed")
		})
		require.Error(t, err)
		require.Equal(t, 0, x)
	})

	t.Run("writes outside a snapshot are not recorded", func(t *testing.T) {
		t.Parallel()

		j := New()
		called := false
		j.Record(func() { called = true })
		id := j.Snapshot()
		require.NoError(t, j.RevertToSnapshot(id))
		require.False(t, called)
	})
}

func TestJournal_InvalidSnapshot(t *testing.T) {
	j := New()
	require.ErrorIs(t, j.RevertToSnapshot(0), ErrInvalidSnapshot)
	require.ErrorIs(t, j.Commit(3), ErrInvalidSnapshot)
}
