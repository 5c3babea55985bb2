package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainlistFixture = `[
  {
    "chainId": 1, "name": "Ethereum Mainnet", "chain": "ETH", "shortName": "eth",
    "infoURL": "https://ethereum.org",
    "nativeCurrency": {"name": "Ether", "symbol": "ETH", "decimals": 18},
    "rpc": [
      {"url": "https://tracked.example/rpc", "tracking": "yes"},
      {"url": "https://clean.example/rpc", "tracking": "none"},
      {"url": "wss://ws.example/rpc", "tracking": "none"},
      {"url": "https://template.example/rpc/${API_KEY}", "tracking": "none"},
      "https://plain.example/rpc",
      "https://clean.example/rpc/"
    ],
    "explorers": [{"name": "Etherscan", "url": "https://etherscan.io", "standard": "EIP3091"}]
  },
  {
    "chainId": "0x89", "name": "Polygon Mainnet", "chain": "Polygon", "shortName": "matic",
    "nativeCurrency": {"name": "POL", "symbol": "POL", "decimals": 18},
    "rpc": [{"url": "https://polygon-rpc.example", "tracking": "limited"}]
  },
  {
    "chainId": 11155111, "name": "Sepolia", "chain": "ETH", "shortName": "sep",
    "network": "testnet",
    "nativeCurrency": {"name": "Sepolia Ether", "symbol": "ETH", "decimals": 18},
    "rpc": ["https://sepolia.example/rpc"]
  },
  {
    "chainId": 42, "name": "No RPC Chain", "chain": "NONE", "shortName": "none",
    "nativeCurrency": {"name": "None", "symbol": "NONE", "decimals": 18},
    "rpc": []
  }
]`

func parsedFixture(t *testing.T) []chainlistEntry {
	t.Helper()
	var entries []chainlistEntry
	require.NoError(t, json.Unmarshal([]byte(chainlistFixture), &entries))
	return entries
}

func TestBuildDirectoryIndexesUsableNetworks(t *testing.T) {
	dir := buildDirectory(parsedFixture(t))

	require.NotNil(t, dir.byID[1])
	require.NotNil(t, dir.byID[137], "hex chain IDs are parsed")
	require.NotNil(t, dir.byID[11155111])
	assert.Nil(t, dir.byID[42], "networks with no usable RPC are dropped")

	eth := dir.byID[1]
	assert.Equal(t, "Ethereum Mainnet", eth.Name)
	assert.Equal(t, "ETH", eth.NativeSymbol)
	assert.Equal(t, 18, eth.Decimals)
	assert.False(t, eth.IsTestnet)
	require.Len(t, eth.Explorers, 1)
	assert.Equal(t, "Etherscan", eth.Explorers[0].Name)

	assert.True(t, dir.byID[11155111].IsTestnet, "network tag marks testnets")
}

func TestFilterRPCURLsOrderingAndHygiene(t *testing.T) {
	dir := buildDirectory(parsedFixture(t))
	urls := dir.byID[1].RPCURLs

	// Untracked endpoints come first; websocket, templated, and duplicate
	// URLs are gone entirely.
	require.Equal(t, []string{
		"https://clean.example/rpc",
		"https://plain.example/rpc",
		"https://tracked.example/rpc",
	}, urls)
}

func TestDirectoryResolve(t *testing.T) {
	dir := buildDirectory(parsedFixture(t))

	assert.Equal(t, int64(137), dir.Resolve("polygon").ChainID)
	assert.Equal(t, int64(137), dir.Resolve("MATIC").ChainID)
	assert.Equal(t, int64(137), dir.Resolve("137").ChainID)
	assert.Equal(t, int64(137), dir.Resolve("0x89").ChainID)
	assert.Equal(t, int64(1), dir.Resolve("eth").ChainID)
	assert.Equal(t, int64(1), dir.Resolve("ethereum mainnet").ChainID)

	// Empty and unknown queries fall back to Ethereum mainnet.
	assert.Equal(t, int64(1), dir.Resolve("").ChainID)
	assert.Equal(t, int64(1), dir.Resolve("not-a-chain").ChainID)
}

func TestDirectorySearch(t *testing.T) {
	dir := buildDirectory(parsedFixture(t))

	byID := dir.Search("137", 10)
	require.Len(t, byID, 1)
	assert.Equal(t, int64(137), byID[0].ChainID)

	// Name fragments match, mainnets sort before testnets.
	matches := dir.Search("eth", 10)
	require.NotEmpty(t, matches)
	assert.Equal(t, int64(1), matches[0].ChainID)
	for i := 1; i < len(matches); i++ {
		if matches[i-1].IsTestnet {
			assert.True(t, matches[i].IsTestnet, "testnets must not precede mainnets")
		}
	}

	// Empty query defaults to the "eth" listing.
	assert.Equal(t, dir.Search("eth", 10), dir.Search("", 10))

	capped := dir.Search("eth", 1)
	assert.Len(t, capped, 1)
}

func TestParseChainID(t *testing.T) {
	id, ok := parseChainID("137")
	require.True(t, ok)
	assert.Equal(t, int64(137), id)

	id, ok = parseChainID("0x89")
	require.True(t, ok)
	assert.Equal(t, int64(137), id)

	_, ok = parseChainID("")
	assert.False(t, ok)
	_, ok = parseChainID("mainnet")
	assert.False(t, ok)
}

func TestDirectoryFetchCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		fmt.Fprint(w, chainlistFixture)
	}))
	defer srv.Close()

	cl := NewChainlistWithConfig(ChainlistConfig{URL: srv.URL}, newTestGateway(), nil)
	for i := 0; i < 3; i++ {
		dir, err := cl.Directory(context.Background())
		require.NoError(t, err)
		require.NotNil(t, dir.Resolve("eth"))
	}
	assert.Equal(t, 1, hits, "the directory is cached for hours")
}
