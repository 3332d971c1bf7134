package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abdkv/internal/msg"
)

func TestMailbox_FIFO(t *testing.T) {
	mb := NewMailbox()
	for i := 0; i < 100; i++ {
		require.NoError(t, mb.Put(msg.Envelope{From: "p0", To: "p1", Body: msg.ReadRequest{Seq: i}}))
	}
	assert.Equal(t, 100, mb.Len())

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		env, err := mb.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, msg.ReadRequest{Seq: i}, env.Body)
	}
	assert.Equal(t, 0, mb.Len())
}

func TestMailbox_ReceiveBlocksUntilPut(t *testing.T) {
	mb := NewMailbox()
	got := make(chan msg.Envelope, 1)

	go func() {
		env, err := mb.Receive(context.Background())
		if err == nil {
			got <- env
		}
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before anything was put")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, mb.Put(msg.Envelope{Body: msg.LaunchSignal{}}))
	select {
	case env := <-got:
		assert.Equal(t, msg.LaunchSignal{}, env.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not wake up")
	}
}

func TestMailbox_ContextCancel(t *testing.T) {
	mb := NewMailbox()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mb.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMailbox_CloseDrainsThenFails(t *testing.T) {
	mb := NewMailbox()
	require.NoError(t, mb.Put(msg.Envelope{Body: msg.CrashSignal{}}))
	mb.Close()

	assert.True(t, errors.Is(mb.Put(msg.Envelope{Body: msg.LaunchSignal{}}), ErrClosed))

	env, err := mb.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, msg.CrashSignal{}, env.Body)

	_, err = mb.Receive(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

// TestMailbox_PerSenderOrder checks that concurrent producers each keep
// their own send order.
func TestMailbox_PerSenderOrder(t *testing.T) {
	const senders, perSender = 4, 500
	mb := NewMailbox()

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_ = mb.Put(msg.Envelope{From: msg.NodeAddress(s), Body: msg.ReadRequest{Seq: i}})
			}
		}(s)
	}
	wg.Wait()

	next := make(map[msg.Address]int)
	for i := 0; i < senders*perSender; i++ {
		env, err := mb.Receive(context.Background())
		require.NoError(t, err)
		seq := env.Body.(msg.ReadRequest).Seq
		require.Equal(t, next[env.From], seq, "out of order from %s", env.From)
		next[env.From]++
	}
}
