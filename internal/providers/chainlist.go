package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
)

const (
	chainlistName       = "chainlist"
	chainlistDefaultURL = "https://chainlist.org/rpcs.json"
	defaultChainID      = 1
)

// trackingWeight orders RPC endpoints by how much request tracking the
// directory reports for them. Lower is better.
var trackingWeight = map[string]int{
	"none":        0,
	"":            1,
	"unspecified": 1,
	"unknown":     1,
	"limited":     2,
	"yes":         3,
	"required":    4,
}

// Explorer is a block explorer entry for a network.
type Explorer struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Standard string `json:"standard,omitempty"`
}

// Network is one EVM chain from the Chainlist directory with its usable
// RPC endpoints, best first.
type Network struct {
	ChainID      int64      `json:"chain_id"`
	Name         string     `json:"name"`
	Chain        string     `json:"chain,omitempty"`
	ShortName    string     `json:"short_name,omitempty"`
	NativeSymbol string     `json:"native_symbol"`
	NativeName   string     `json:"native_name"`
	Decimals     int        `json:"decimals"`
	RPCURLs      []string   `json:"rpc_urls"`
	IsTestnet    bool       `json:"is_testnet"`
	InfoURL      string     `json:"info_url,omitempty"`
	Explorers    []Explorer `json:"explorers,omitempty"`

	aliases map[string]struct{}
}

// NetworkDirectory is the indexed Chainlist snapshot.
type NetworkDirectory struct {
	byID    map[int64]*Network
	byAlias map[string]*Network
	ordered []*Network
}

// ChainlistConfig configures the directory client.
type ChainlistConfig struct {
	URL     string
	Timeout time.Duration
}

// DefaultChainlistConfig returns the public directory defaults.
func DefaultChainlistConfig() ChainlistConfig {
	return ChainlistConfig{
		URL:     chainlistDefaultURL,
		Timeout: 20 * time.Second,
	}
}

// Chainlist loads and indexes the public RPC directory.
type Chainlist struct {
	config  ChainlistConfig
	client  HTTPDoer
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewChainlist creates a client with default configuration.
func NewChainlist(gw *gateway.Gateway, logger *zap.Logger) *Chainlist {
	return NewChainlistWithConfig(DefaultChainlistConfig(), gw, logger)
}

// NewChainlistWithConfig creates a client with custom configuration.
func NewChainlistWithConfig(config ChainlistConfig, gw *gateway.Gateway, logger *zap.Logger) *Chainlist {
	if config.URL == "" {
		config.URL = chainlistDefaultURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chainlist{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		gateway: gw,
		logger:  logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Chainlist) SetHTTPClient(client HTTPDoer) { c.client = client }

type chainlistEntry struct {
	ChainID        json.Number     `json:"chainId"`
	Name           string          `json:"name"`
	Chain          string          `json:"chain"`
	ShortName      string          `json:"shortName"`
	NetworkTag     string          `json:"network"`
	InfoURL        string          `json:"infoURL"`
	RPC            []json.RawMessage `json:"rpc"`
	NativeCurrency struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"nativeCurrency"`
	Explorers []struct {
		Name     string `json:"name"`
		URL      string `json:"url"`
		Standard string `json:"standard"`
	} `json:"explorers"`
}

type chainlistRPCEntry struct {
	URL      string `json:"url"`
	Tracking string `json:"tracking"`
}

// Directory returns the indexed network directory, cached for hours.
func (c *Chainlist) Directory(ctx context.Context) (*NetworkDirectory, error) {
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: chainlistName,
		Key:      "rpcs",
		TTL:      gateway.TTLChainlist,
		Describe: "Loading the Chainlist RPC directory",
		Do: func(ctx context.Context) (any, error) {
			var entries []chainlistEntry
			if _, err := getJSON(ctx, c.client, chainlistName, c.config.URL, nil, &entries); err != nil {
				return nil, err
			}
			dir := buildDirectory(entries)
			if len(dir.byID) == 0 {
				return nil, fmt.Errorf("%s: no usable networks in directory", chainlistName)
			}
			return dir, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.(*NetworkDirectory), nil
}

func buildDirectory(entries []chainlistEntry) *NetworkDirectory {
	dir := &NetworkDirectory{
		byID:    make(map[int64]*Network),
		byAlias: make(map[string]*Network),
	}
	for _, entry := range entries {
		chainID, ok := parseChainID(entry.ChainID.String())
		if !ok {
			continue
		}
		rpcURLs := filterRPCURLs(entry.RPC)
		if len(rpcURLs) == 0 {
			continue
		}

		symbol := deriveNativeSymbol(entry, chainID)
		name := firstNonEmpty(entry.Name, entry.NativeCurrency.Name, symbol)
		decimals := entry.NativeCurrency.Decimals
		if decimals <= 0 {
			decimals = 18
		}

		network := &Network{
			ChainID:      chainID,
			Name:         name,
			Chain:        strings.ToUpper(strings.TrimSpace(entry.Chain)),
			ShortName:    strings.TrimSpace(entry.ShortName),
			NativeSymbol: symbol,
			NativeName:   firstNonEmpty(entry.NativeCurrency.Name, name),
			Decimals:     decimals,
			RPCURLs:      rpcURLs,
			IsTestnet:    isTestnet(entry, name),
			InfoURL:      strings.TrimSpace(entry.InfoURL),
			aliases:      make(map[string]struct{}),
		}
		for _, ex := range entry.Explorers {
			if strings.TrimSpace(ex.URL) == "" {
				continue
			}
			network.Explorers = append(network.Explorers, Explorer{
				Name:     firstNonEmpty(ex.Name, ex.URL),
				URL:      strings.TrimSpace(ex.URL),
				Standard: ex.Standard,
			})
		}

		for _, alias := range aliasCandidates(network, chainID) {
			network.aliases[alias] = struct{}{}
			if _, taken := dir.byAlias[alias]; !taken {
				dir.byAlias[alias] = network
			}
		}

		if _, seen := dir.byID[chainID]; !seen {
			dir.byID[chainID] = network
			dir.ordered = append(dir.ordered, network)
		}
	}
	return dir
}

func parseChainID(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(value), "0x") {
		id, err := strconv.ParseInt(value[2:], 16, 64)
		return id, err == nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	return id, err == nil
}

// filterRPCURLs keeps plain https endpoints, drops websocket and
// templated URLs, and orders by tracking weight then directory order.
func filterRPCURLs(raw []json.RawMessage) []string {
	type candidate struct {
		weight int
		index  int
		url    string
	}
	var candidates []candidate
	seen := make(map[string]struct{})
	for idx, item := range raw {
		var rpcURL, tracking string
		var asString string
		if err := json.Unmarshal(item, &asString); err == nil {
			rpcURL = asString
		} else {
			var obj chainlistRPCEntry
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			rpcURL, tracking = obj.URL, obj.Tracking
		}

		rpcURL = strings.TrimSpace(rpcURL)
		lower := strings.ToLower(rpcURL)
		if !strings.HasPrefix(lower, "http") {
			continue
		}
		if strings.Contains(rpcURL, "${") || strings.Contains(rpcURL, "{{") {
			continue
		}
		normalized := strings.TrimRight(rpcURL, "/")
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		weight, ok := trackingWeight[strings.ToLower(tracking)]
		if !ok {
			weight = 2
		}
		if strings.Contains(strings.ToLower(normalized), "api_key") || strings.Contains(strings.ToLower(normalized), "apikey") {
			weight += 2
		}
		candidates = append(candidates, candidate{weight: weight, index: idx, url: normalized})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight < candidates[j].weight
		}
		return candidates[i].index < candidates[j].index
	})
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, c.url)
	}
	return urls
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func aliasCandidates(network *Network, chainID int64) []string {
	values := []string{
		strconv.FormatInt(chainID, 10),
		"0x" + strconv.FormatInt(chainID, 16),
		network.Name,
		network.Chain,
		network.ShortName,
		network.NativeSymbol,
	}
	set := make(map[string]struct{})
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		set[value] = struct{}{}
		slug := strings.TrimSpace(nonAlnum.ReplaceAllString(value, " "))
		if slug != "" {
			set[slug] = struct{}{}
			set[strings.ReplaceAll(slug, " ", "")] = struct{}{}
		}
	}
	aliases := make([]string, 0, len(set))
	for alias := range set {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func deriveNativeSymbol(entry chainlistEntry, chainID int64) string {
	for _, candidate := range []string{
		entry.NativeCurrency.Symbol,
		entry.NativeCurrency.Name,
		entry.ShortName,
		entry.Chain,
		entry.Name,
	} {
		sanitized := strings.Join(strings.Fields(candidate), "")
		if sanitized != "" {
			return strings.ToUpper(sanitized)
		}
	}
	return fmt.Sprintf("CHAIN%d", chainID)
}

func isTestnet(entry chainlistEntry, name string) bool {
	tag := strings.ToLower(strings.TrimSpace(entry.NetworkTag))
	if tag != "" {
		return tag != "mainnet" && tag != "production"
	}
	lowered := strings.ToLower(name)
	for _, marker := range []string{"test", "devnet", "dev", "beta"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Resolve picks the network matching query: chain ID (decimal or hex),
// alias, or token match. Empty or unmatched queries fall back to the
// Ethereum mainnet entry.
func (d *NetworkDirectory) Resolve(query string) *Network {
	lookup := strings.ToLower(strings.TrimSpace(query))
	if lookup == "" {
		return d.byID[defaultChainID]
	}
	if id, ok := parseChainID(lookup); ok {
		if network := d.byID[id]; network != nil {
			return network
		}
	}
	if network := d.byAlias[lookup]; network != nil {
		return network
	}
	normalized := strings.TrimSpace(nonAlnum.ReplaceAllString(lookup, " "))
	if network := d.byAlias[normalized]; network != nil {
		return network
	}
	for _, token := range strings.Fields(strings.ReplaceAll(lookup, "-", " ")) {
		if network := d.byAlias[token]; network != nil {
			return network
		}
	}
	return d.byID[defaultChainID]
}

// Search lists networks matching query for the RPC directory command:
// by chain ID, alias, or name fragment, mainnets before testnets, at
// most max entries.
func (d *NetworkDirectory) Search(query string, max int) []*Network {
	lookup := strings.ToLower(strings.TrimSpace(query))
	if lookup == "" {
		lookup = "eth"
	}
	if id, ok := parseChainID(lookup); ok {
		if network := d.byID[id]; network != nil {
			return []*Network{network}
		}
	}

	var matches []*Network
	seen := make(map[int64]struct{})
	add := func(n *Network) {
		if _, dup := seen[n.ChainID]; !dup {
			matches = append(matches, n)
			seen[n.ChainID] = struct{}{}
		}
	}

	for _, network := range d.ordered {
		if _, ok := network.aliases[lookup]; ok {
			add(network)
			continue
		}
		nameLower := strings.ToLower(network.Name)
		if nameLower == lookup {
			add(network)
			continue
		}
		if len(lookup) >= 3 && strings.Contains(nameLower, lookup) {
			add(network)
		}
	}
	if len(matches) == 0 {
		for _, network := range d.ordered {
			if strings.HasPrefix(strings.ToLower(network.Name), lookup) ||
				strings.HasPrefix(strings.ToLower(network.ShortName), lookup) {
				add(network)
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].IsTestnet != matches[j].IsTestnet {
			return !matches[i].IsTestnet
		}
		return matches[i].ChainID < matches[j].ChainID
	})
	if max > 0 && len(matches) > max {
		matches = matches[:max]
	}
	return matches
}
