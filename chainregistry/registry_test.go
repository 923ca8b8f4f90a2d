package chainregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmsentry/pers/pkgerr"
)

func TestGetKnownChain(t *testing.T) {
	r := New(nil, "")
	d, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, "Ethereum", d.DisplayName)
	require.Equal(t, "Uniswap V2", d.PrimaryRouter().Name)
	require.NotEmpty(t, d.RPCEndpoints)
}

func TestGetUnsupportedChain(t *testing.T) {
	r := New(nil, "")
	_, err := r.Get(999999)
	require.Error(t, err)
	code, ok := pkgerr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, pkgerr.CodeConfigUnsupportedChain, code)
}

func TestManagedEndpointPrependedWithAPIKey(t *testing.T) {
	r := New(nil, "test-key")
	d, err := r.Get(1)
	require.NoError(t, err)
	require.Len(t, d.RPCEndpoints, 2)
	require.Contains(t, d.RPCEndpoints[0], "test-key")
}

func TestNoManagedEndpointWithoutAPIKey(t *testing.T) {
	r := New(nil, "")
	d, err := r.Get(1)
	require.NoError(t, err)
	require.Len(t, d.RPCEndpoints, 1)
}

func TestRPCOverridePrepended(t *testing.T) {
	overrides := map[uint64]string{1: "https://custom.example/rpc"}
	r := New(overrides, "")
	d, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, "https://custom.example/rpc", d.RPCEndpoints[0])
}

func TestChainIDByName(t *testing.T) {
	r := New(nil, "")
	id, ok := r.ChainIDByName("ethereum")
	require.True(t, ok)
	require.Equal(t, uint64(1), id)

	_, ok = r.ChainIDByName("nonexistent-chain")
	require.False(t, ok)
}

func TestSupportedChainIDsSorted(t *testing.T) {
	r := New(nil, "")
	ids := r.SupportedChainIDs()
	require.Len(t, ids, 7)
	for i := 1; i < len(ids); i++ {
		require.Less(t, ids[i-1], ids[i])
	}
}
