package querycache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rundeklar/go-auth-client/querycache"
	"github.com/rundeklar/go-auth-client/tenant"
	"github.com/rundeklar/go-auth-client/token/store"
)

func TestGetSet(t *testing.T) {
	c, err := querycache.New[string, string](8, nil)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("evenings")
	require.False(t, ok)

	c.Set("evenings", "tuesday, thursday")
	got, ok := c.Get("evenings")
	require.True(t, ok)
	require.Equal(t, "tuesday, thursday", got)
	require.Equal(t, 1, c.Len())
}

func TestEvictsBeyondSize(t *testing.T) {
	c, err := querycache.New[int, int](2, nil)
	require.NoError(t, err)
	defer c.Close()

	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)
	require.Equal(t, 2, c.Len())
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestPurgesOnTenantChange(t *testing.T) {
	b := tenant.NewBinding("aarhus", store.NewInMemory())
	c, err := querycache.New[string, string](8, b)
	require.NoError(t, err)
	defer c.Close()

	c.Set("members", "42")
	b.SetTenant("odense")

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPurgesOnIsolationChange(t *testing.T) {
	b := tenant.NewBinding(tenant.Demo, store.NewInMemory())
	c, err := querycache.New[string, string](8, b)
	require.NoError(t, err)
	defer c.Close()

	c.Set("members", "42")
	b.GetOrCreateIsolation()

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCloseStopsSelfPurging(t *testing.T) {
	b := tenant.NewBinding("aarhus", store.NewInMemory())
	c, err := querycache.New[string, string](8, b)
	require.NoError(t, err)

	c.Close()
	c.Set("members", "42")
	b.SetTenant("odense")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, c.Len())
}
