package fitness_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-lab/crucible/internal/fitness"
	"github.com/crucible-lab/crucible/internal/testutil"
)

func TestCollect_ReturnsReadyValue(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.ScriptFitness("ind-1", 8.5)

	c := fitness.NewCollectorWithInterval(gw, time.Second, time.Millisecond)
	v, err := c.Collect(context.Background(), "ind-1")
	require.NoError(t, err)
	assert.Equal(t, 8.5, v)
	assert.Equal(t, []string{"ind-1"}, gw.Submitted())
}

func TestCollect_GatewayFailureIsWrapped(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.ScriptFailure("ind-1", "spectrometer offline")

	c := fitness.NewCollectorWithInterval(gw, time.Second, time.Millisecond)
	_, err := c.Collect(context.Background(), "ind-1")
	require.ErrorIs(t, err, fitness.ErrGateway)
	assert.Contains(t, err.Error(), "spectrometer offline")
}

func TestCollect_BoundedWaitExpires(t *testing.T) {
	gw := testutil.NewFakeGateway()
	// Nothing scripted: the sample stays pending forever.

	c := fitness.NewCollectorWithInterval(gw, 20*time.Millisecond, time.Millisecond)
	_, err := c.Collect(context.Background(), "ind-1")
	require.ErrorIs(t, err, fitness.ErrGateway)
	assert.Contains(t, err.Error(), "no value within")
}

func TestCollect_PendingThenReady(t *testing.T) {
	gw := testutil.NewFakeGateway()
	var polls atomic.Int32
	gw.Fn = func(id string) (fitness.Sample, bool) {
		if polls.Add(1) < 3 {
			return fitness.Sample{Status: fitness.Pending}, true
		}
		return fitness.Sample{Status: fitness.Ready, Value: 2.5}, true
	}

	c := fitness.NewCollectorWithInterval(gw, time.Second, time.Millisecond)
	v, err := c.Collect(context.Background(), "ind-1")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestCollect_CanceledContext(t *testing.T) {
	gw := testutil.NewFakeGateway()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := fitness.NewCollectorWithInterval(gw, time.Second, time.Millisecond)
	_, err := c.Collect(ctx, "ind-1")
	require.ErrorIs(t, err, fitness.ErrGateway)
}
