package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
)

const (
	gasProviderName = "gas"
	weiPerGwei      = 1e9

	transferGasLimit = 21_000
	contractGasLimit = 100_000

	// defaultPriorityFraction splits a legacy eth_gasPrice into base and
	// tip components when the node does not expose a priority fee.
	defaultPriorityFraction = 0.15
)

// gasActionProfiles are typical gas limits for common on-chain actions.
var gasActionProfiles = []struct {
	Action   string
	GasLimit int64
}{
	{"Swap", 150_000},
	{"NFT Sale", 210_000},
	{"Bridging", 250_000},
	{"Borrowing", 180_000},
}

// gasTierProfiles scale the base fee and tip into the three quoted
// speed tiers.
var gasTierProfiles = []struct {
	Key            string
	Label          string
	Emoji          string
	BaseMultiplier float64
	TipMultiplier  float64
	ETASeconds     int
}{
	{"low", "Low", "😌", 0.95, 0.5, 45},
	{"average", "Average", "🙂", 1.0, 1.0, 30},
	{"high", "High", "😬", 1.05, 2.0, 15},
}

// GasTierQuote is one speed tier of a gas quote. Currency fields are nil
// when no fiat price for the native token was available.
type GasTierQuote struct {
	Key                  string
	Label                string
	Emoji                string
	TotalWei             int64
	TotalGwei            float64
	BaseComponentGwei    float64
	PriorityComponentGwei float64
	ETASeconds           int
	TransferFeeNative    float64
	TransferFeeCurrency  *float64
	ContractFeeNative    float64
	ContractFeeCurrency  *float64

	perGasNative   float64
	perGasCurrency *float64
}

// GasActionEstimate prices a common action across every tier.
type GasActionEstimate struct {
	Action        string
	GasLimit      int64
	NativeCosts   map[string]float64
	CurrencyCosts map[string]*float64
}

// GasQuote is a full gas price report for one network.
type GasQuote struct {
	Network               *Network
	BaseFeeGwei           float64
	PriorityFeeGwei       float64
	Tiers                 []GasTierQuote
	Actions               []GasActionEstimate
	NativePriceInCurrency *float64
	RequestedCurrency     string
	ResolvedCurrency      string
	RPCURL                string
	TransferGasLimit      int64
	ContractGasLimit      int64
}

// NativePricer supplies a fiat price for a network's native token. The
// price fan-out service implements it.
type NativePricer interface {
	NativePrice(ctx context.Context, symbol, currency string) (float64, error)
}

// GasService quotes EIP-1559 style gas prices by querying a network's
// public RPC endpoints directly. Quotes are never cached; gas moves too
// fast for that to help.
type GasService struct {
	chainlist *Chainlist
	prices    NativePricer
	client    HTTPDoer
	logger    *zap.Logger
}

// NewGasService wires the gas quoting pipeline. prices may be nil, in
// which case quotes carry native amounts only.
func NewGasService(chainlist *Chainlist, prices NativePricer, logger *zap.Logger) *GasService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GasService{
		chainlist: chainlist,
		prices:    prices,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// SetHTTPClient replaces the RPC client.
func (s *GasService) SetHTTPClient(client HTTPDoer) { s.client = client }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Quote resolves the network and computes tiered gas pricing in the
// requested currency, falling back to USD when the native token has no
// price in it.
func (s *GasService) Quote(ctx context.Context, networkQuery, currency string) (*GasQuote, error) {
	directory, err := s.chainlist.Directory(ctx)
	if err != nil {
		return nil, err
	}
	network := directory.Resolve(networkQuery)
	if network == nil {
		return nil, fmt.Errorf("%s: unsupported network %q", gasProviderName, networkQuery)
	}

	if report := gateway.ReporterFromContext(ctx); report != nil {
		report(fmt.Sprintf("Querying %s gas prices", network.Name))
	}

	gasPriceWei, rpcURL, err := s.fetchGasPrice(ctx, network)
	if err != nil {
		return nil, err
	}
	priorityWei := s.fetchPriorityFee(ctx, rpcURL)

	baseWei, priorityWei := splitGasPrice(gasPriceWei, priorityWei)

	requested := strings.ToUpper(strings.TrimSpace(currency))
	if requested == "" {
		requested = "USD"
	}
	resolved := requested
	var nativePrice *float64
	if s.prices != nil {
		if price, err := s.prices.NativePrice(ctx, network.NativeSymbol, requested); err == nil {
			nativePrice = &price
		} else if requested != "USD" {
			if price, err := s.prices.NativePrice(ctx, network.NativeSymbol, "USD"); err == nil {
				nativePrice = &price
				resolved = "USD"
			}
		}
	}

	quote := &GasQuote{
		Network:               network,
		BaseFeeGwei:           float64(baseWei) / weiPerGwei,
		PriorityFeeGwei:       float64(priorityWei) / weiPerGwei,
		NativePriceInCurrency: nativePrice,
		RequestedCurrency:     requested,
		ResolvedCurrency:      resolved,
		RPCURL:                rpcURL,
		TransferGasLimit:      transferGasLimit,
		ContractGasLimit:      contractGasLimit,
	}

	nativeDivisor := math.Pow10(network.Decimals)
	for _, profile := range gasTierProfiles {
		baseComponent := roundWei(float64(baseWei) * profile.BaseMultiplier)
		priorityComponent := roundWei(float64(priorityWei) * profile.TipMultiplier)
		if baseComponent <= 0 {
			baseComponent = baseWei
		}
		if priorityComponent < 1 && priorityWei > 0 {
			priorityComponent = 1
		}
		totalWei := baseComponent + priorityComponent
		if totalWei <= 0 {
			totalWei = gasPriceWei
		}

		tier := GasTierQuote{
			Key:                   profile.Key,
			Label:                 profile.Label,
			Emoji:                 profile.Emoji,
			TotalWei:              totalWei,
			TotalGwei:             float64(totalWei) / weiPerGwei,
			BaseComponentGwei:     float64(baseComponent) / weiPerGwei,
			PriorityComponentGwei: float64(priorityComponent) / weiPerGwei,
			ETASeconds:            profile.ETASeconds,
			perGasNative:          float64(totalWei) / nativeDivisor,
		}
		if nativePrice != nil {
			perGas := tier.perGasNative * *nativePrice
			tier.perGasCurrency = &perGas
		}
		tier.TransferFeeNative = tier.perGasNative * transferGasLimit
		tier.ContractFeeNative = tier.perGasNative * contractGasLimit
		if tier.perGasCurrency != nil {
			transfer := *tier.perGasCurrency * transferGasLimit
			contract := *tier.perGasCurrency * contractGasLimit
			tier.TransferFeeCurrency = &transfer
			tier.ContractFeeCurrency = &contract
		}
		quote.Tiers = append(quote.Tiers, tier)
	}

	for _, action := range gasActionProfiles {
		estimate := GasActionEstimate{
			Action:        action.Action,
			GasLimit:      action.GasLimit,
			NativeCosts:   make(map[string]float64, len(quote.Tiers)),
			CurrencyCosts: make(map[string]*float64, len(quote.Tiers)),
		}
		for _, tier := range quote.Tiers {
			estimate.NativeCosts[tier.Key] = tier.perGasNative * float64(action.GasLimit)
			if tier.perGasCurrency != nil {
				cost := *tier.perGasCurrency * float64(action.GasLimit)
				estimate.CurrencyCosts[tier.Key] = &cost
			} else {
				estimate.CurrencyCosts[tier.Key] = nil
			}
		}
		quote.Actions = append(quote.Actions, estimate)
	}

	return quote, nil
}

// splitGasPrice derives base and priority components from a legacy gas
// price and an optional node-reported priority fee.
func splitGasPrice(gasPriceWei, priorityWei int64) (base, priority int64) {
	priority = priorityWei
	if priority <= 0 {
		priority = roundWei(float64(gasPriceWei) * defaultPriorityFraction)
	}
	if priority < 1 {
		priority = 1
	}
	if priority >= gasPriceWei {
		priority = roundWei(float64(gasPriceWei) * defaultPriorityFraction)
		if priority >= gasPriceWei {
			priority = roundWei(float64(gasPriceWei) * 0.2)
		}
	}

	base = gasPriceWei - priority
	if base <= 0 {
		base = roundWei(float64(gasPriceWei) * 0.8)
	}
	if base <= 0 {
		base = gasPriceWei
	}
	return base, priority
}

func roundWei(v float64) int64 {
	return int64(math.Round(v))
}

// fetchGasPrice tries the network's RPC endpoints in order and returns
// the first usable eth_gasPrice along with the endpoint that served it.
func (s *GasService) fetchGasPrice(ctx context.Context, network *Network) (int64, string, error) {
	var failures []string
	for _, rpcURL := range network.RPCURLs {
		wei, err := s.rpcCall(ctx, rpcURL, 1, "eth_gasPrice")
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", rpcURL, err))
			continue
		}
		if wei <= 0 {
			failures = append(failures, fmt.Sprintf("%s: non-positive gas price", rpcURL))
			continue
		}
		s.logger.Debug("gas price fetched",
			zap.String("network", network.Name),
			zap.String("rpc", rpcURL),
			zap.Int64("wei", wei))
		return wei, rpcURL, nil
	}
	detail := strings.Join(failures, "; ")
	if detail == "" {
		detail = "no RPC endpoints available"
	}
	return 0, "", fmt.Errorf("%s: gas price unavailable for %s: %s", gasProviderName, network.Name, detail)
}

// fetchPriorityFee asks the serving endpoint for eth_maxPriorityFeePerGas.
// Failures are fine; the caller falls back to a fraction of the gas price.
func (s *GasService) fetchPriorityFee(ctx context.Context, rpcURL string) int64 {
	wei, err := s.rpcCall(ctx, rpcURL, 2, "eth_maxPriorityFeePerGas")
	if err != nil || wei <= 0 {
		return 0
	}
	return wei
}

func (s *GasService) rpcCall(ctx context.Context, rpcURL string, id int, method string) (int64, error) {
	var resp rpcResponse
	body := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: []any{}}
	if _, err := postJSON(ctx, s.client, gasProviderName, rpcURL, nil, body, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	result := strings.TrimPrefix(strings.TrimSpace(resp.Result), "0x")
	if result == "" {
		return 0, fmt.Errorf("empty result for %s", method)
	}
	wei, err := strconv.ParseInt(result, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex result %q", resp.Result)
	}
	return wei, nil
}
