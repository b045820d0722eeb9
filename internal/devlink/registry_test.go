package devlink_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-lab/crucible/internal/devlink"
	"github.com/crucible-lab/crucible/internal/testutil"
)

func TestRegistry_LookupAndNames(t *testing.T) {
	rec := testutil.NewRecorder()
	reg := devlink.NewRegistry(
		testutil.NewFakeLink("ring", rec),
		testutil.NewFakeLink("pumps", rec),
	)

	l, err := reg.Lookup("pumps")
	require.NoError(t, err)
	assert.Equal(t, "pumps", l.Name())

	_, err = reg.Lookup("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

	assert.Equal(t, []string{"pumps", "ring"}, reg.Names())
}

func TestRegistry_AcquireSerializesPerLink(t *testing.T) {
	rec := testutil.NewRecorder()
	reg := devlink.NewRegistry(testutil.NewFakeLink("pumps", rec))

	require.NoError(t, reg.Acquire("pumps"))

	acquired := make(chan struct{})
	go func() {
		_ = reg.Acquire("pumps")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire must block while the link is held")
	case <-time.After(20 * time.Millisecond):
	}

	reg.Release("pumps")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after Release")
	}
}

func TestRegistry_AcquireUnknownLink(t *testing.T) {
	reg := devlink.NewRegistry()
	require.Error(t, reg.Acquire("ghost"))
}

func TestRegistry_LinksOnDifferentGatesDoNotBlock(t *testing.T) {
	rec := testutil.NewRecorder()
	reg := devlink.NewRegistry(
		testutil.NewFakeLink("pumps", rec),
		testutil.NewFakeLink("ring", rec),
	)

	require.NoError(t, reg.Acquire("pumps"))
	done := make(chan struct{})
	go func() {
		_ = reg.Acquire("ring")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different link must not block")
	}
}
