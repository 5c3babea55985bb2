package agent

import (
	"strings"
	"testing"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
	"github.com/Widiskel/skel-crypto-agent/internal/providers"
)

func TestFormatFloat(t *testing.T) {
	cases := []struct {
		value     float64
		precision int
		want      string
	}{
		{0, 8, "0"},
		{5000, 5, "5000"},
		{1.5, 2, "1.5"},
		{2500.456, 2, "2500.46"},
		{0.002, 8, "0.002"},
		{1.20, 4, "1.2"},
	}
	for _, tc := range cases {
		if got := formatFloat(tc.value, tc.precision); got != tc.want {
			t.Errorf("formatFloat(%v, %d) = %q, want %q", tc.value, tc.precision, got, tc.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(nil); got != "-" {
		t.Fatalf("nil percent = %q, want -", got)
	}
	up := 5.25
	if got := formatPercent(&up); got != "+5.25%" {
		t.Fatalf("positive percent = %q", got)
	}
	down := -3.1
	if got := formatPercent(&down); got != "-3.10%" {
		t.Fatalf("negative percent = %q", got)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{0, "-"},
		{2500.456, "2500.46"},
		{0.5, "0.5"},
		{0.002, "0.002"},
	}
	for _, tc := range cases {
		if got := formatPrice(tc.value); got != tc.want {
			t.Errorf("formatPrice(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestAsciiTableAlignment(t *testing.T) {
	got := asciiTable([]string{"#", "Name"}, [][]string{
		{"1", "Bitcoin"},
		{"2", "Sui"},
	})
	want := strings.Join([]string{
		"#  Name   ",
		"-  -------",
		"1  Bitcoin",
		"2  Sui    ",
	}, "\n")
	if got != want {
		t.Fatalf("table mismatch:\n%q\nwant:\n%q", got, want)
	}
}

func TestRenderTrendingTable(t *testing.T) {
	change := 12.4
	out := renderTrendingTable([]market.CoinSummary{
		{Symbol: "SUI", Name: "Sui", MarketCapRank: 20, PriceUSD: 3.5, Change24h: &change},
		{Symbol: "PEPE", Name: "Pepe & Co", PriceUSD: 0.000012},
	})
	if !strings.HasPrefix(out, "<pre>") || !strings.HasSuffix(out, "</pre>") {
		t.Fatalf("table not fenced: %q", out)
	}
	if !strings.Contains(out, "+12.40%") {
		t.Errorf("missing percent column: %q", out)
	}
	if !strings.Contains(out, "Pepe &amp; Co") {
		t.Errorf("name not escaped: %q", out)
	}
	// Unranked coins show a dash, and missing change shows a dash.
	if !strings.Contains(out, "-") {
		t.Errorf("missing placeholder dashes: %q", out)
	}
}

func TestRenderSentimentLine(t *testing.T) {
	change := 10.0
	details := market.CoinDetails{CoinSummary: market.CoinSummary{Name: "Sui", Change24h: &change}}
	line := renderSentimentLine(details, nil)
	if line != "<b>Sui</b>: 75/100 (Bullish)" {
		t.Fatalf("sentiment line = %q", line)
	}
}

func TestRenderConversionLine(t *testing.T) {
	c24 := 1.5
	line := renderConversionLine("EN", 2, "ETH", "USD", market.PriceQuote{
		Source: "Binance", Symbol: "ETH", Name: "Ethereum", Price: 2500, Change24h: &c24,
	})
	if !strings.Contains(line, "2 ETH (Ethereum) = <code>5000</code> USD") {
		t.Fatalf("conversion body missing: %q", line)
	}
	if !strings.Contains(line, `<a href="https://www.binance.com/en">Binance</a>`) {
		t.Errorf("known source not linked: %q", line)
	}
	if !strings.Contains(line, "24h +1.50%") {
		t.Errorf("change block missing: %q", line)
	}

	plain := renderConversionLine("EN", 1, "BTC", "USD", market.PriceQuote{
		Source: "SomeDex", Symbol: "BTC", Price: 60000,
	})
	if strings.Contains(plain, "<a href=") {
		t.Errorf("unknown source should not be linked: %q", plain)
	}
	if strings.Contains(plain, "<blockquote>") {
		t.Errorf("quote without change windows got a change block: %q", plain)
	}
}

func TestRenderRPCResponse(t *testing.T) {
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = "https://rpc.example/" + string(rune('a'+i))
	}
	network := &providers.Network{
		ChainID:      11155111,
		Name:         "Sepolia",
		Chain:        "ETH",
		ShortName:    "sep",
		NativeSymbol: "ETH",
		IsTestnet:    true,
		RPCURLs:      urls,
		InfoURL:      "https://sepolia.dev",
		Explorers: []providers.Explorer{
			{Name: "Etherscan", URL: "https://sepolia.etherscan.io"},
		},
	}
	out := renderRPCResponse("sepolia", []*providers.Network{network})

	if !strings.Contains(out, "RPC Directory · SEPOLIA") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, "Sepolia (chain ID 11155111) — Testnet") {
		t.Errorf("missing testnet marker: %q", out)
	}
	if !strings.Contains(out, "(+2 more on Chainlist)") {
		t.Errorf("RPC overflow not summarized: %q", out)
	}
	if !strings.Contains(out, `<a href="https://sepolia.etherscan.io">Etherscan</a>`) {
		t.Errorf("explorer not linked: %q", out)
	}
}

func TestRenderGasResponse(t *testing.T) {
	fee := 1.25
	price := 2000.0
	quote := &providers.GasQuote{
		Network:         &providers.Network{ChainID: 1, Name: "Ethereum Mainnet", NativeSymbol: "ETH"},
		BaseFeeGwei:     20,
		PriorityFeeGwei: 2,
		Tiers: []providers.GasTierQuote{
			{
				Key: "average", Label: "Average", Emoji: "🙂",
				TotalGwei: 22, BaseComponentGwei: 20, PriorityComponentGwei: 2,
				ETASeconds: 30, TransferFeeNative: 0.000462, ContractFeeNative: 0.0022,
				TransferFeeCurrency: &fee,
			},
		},
		Actions: []providers.GasActionEstimate{
			{
				Action: "Swap", GasLimit: 150000,
				NativeCosts:   map[string]float64{"average": 0.0033},
				CurrencyCosts: map[string]*float64{"average": &fee},
			},
		},
		NativePriceInCurrency: &price,
		RequestedCurrency:     "XYZ",
		ResolvedCurrency:      "USD",
		RPCURL:                "https://eth.llamarpc.com",
		TransferGasLimit:      21000,
		ContractGasLimit:      100000,
	}
	out := renderGasResponse(quote)

	if !strings.Contains(out, "<b>Ethereum Mainnet Gas Fees</b>") {
		t.Fatalf("missing title: %q", out)
	}
	if !strings.Contains(out, "ETA: ~30 sec") {
		t.Errorf("missing ETA: %q", out)
	}
	if !strings.Contains(out, "Swap") || !strings.Contains(out, "<b>1.25</b> USD") {
		t.Errorf("missing action estimate: %q", out)
	}
	if !strings.Contains(out, "Displayed amounts use USD because rates for XYZ were unavailable") {
		t.Errorf("missing currency fallback note: %q", out)
	}
	if !strings.Contains(out, "chain ID 1") {
		t.Errorf("missing network details: %q", out)
	}
}
