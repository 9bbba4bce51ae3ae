package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("fan out", func(t *testing.T) {
		b := New()
		a, c := b.Subscribe(), b.Subscribe()

		u := Update{Hublot: "A1", Success: true, At: time.Now()}
		b.Publish(u)

		assert.Equal(t, u, <-a)
		assert.Equal(t, u, <-c)
	})

	t.Run("full subscriber skips", func(t *testing.T) {
		b := New()
		ch := b.Subscribe()

		b.Publish(Update{Hublot: "first"})
		b.Publish(Update{Hublot: "second"})

		got := <-ch
		assert.Equal(t, "first", got.Hublot)

		select {
		case u := <-ch:
			t.Fatalf("unexpected buffered update %+v", u)
		default:
		}

		b.Publish(Update{Hublot: "third"})
		assert.Equal(t, "third", (<-ch).Hublot)
	})

	t.Run("close", func(t *testing.T) {
		b := New()
		ch := b.Subscribe()
		b.Close()

		_, ok := <-ch
		require.False(t, ok)

		assert.NotPanics(t, func() { b.Publish(Update{Hublot: "late"}) })
	})
}
