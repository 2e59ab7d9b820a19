package mailbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := New[int](4)
	r1 := b.Subscribe()
	r2 := b.Subscribe()

	n, err := b.Send(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx := context.Background()
	v1, err := r1.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := r2.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v2)
}

func TestBusDropsOldestWhenFull(t *testing.T) {
	b := New[int](2)
	r := b.Subscribe()

	_, err := b.Send(1)
	require.NoError(t, err)
	_, err = b.Send(2)
	require.NoError(t, err)
	_, err = b.Send(3)
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := r.Recv(ctx)
	require.NoError(t, err)
	v2, err := r.Recv(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, []int{v1, v2})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New[int](2)
	r := b.Subscribe()
	r.Unsubscribe()

	n, err := b.Send(1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCloseClosesReceivers(t *testing.T) {
	b := New[int](2)
	r := b.Subscribe()
	b.Close()

	_, err := r.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = b.Send(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecvRespectsContextCancellation(t *testing.T) {
	b := New[int](2)
	r := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
