package agent

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
	"github.com/Widiskel/skel-crypto-agent/internal/providers"
	"github.com/Widiskel/skel-crypto-agent/internal/sentiment"
)

// Rendering helpers for the Telegram-HTML responses. Tables go inside
// code fences so proportional fonts keep the columns aligned.

func htmlEscape(text string) string { return html.EscapeString(text) }

func htmlBold(text string) string { return "<b>" + htmlEscape(text) + "</b>" }

func htmlCode(text string) string { return "<code>" + htmlEscape(text) + "</code>" }

func htmlLink(href, label string) string {
	return fmt.Sprintf("<a href=%q>%s</a>", href, htmlEscape(label))
}

// formatFloat trims trailing zeros after rounding to precision.
func formatFloat(value float64, precision int) string {
	if value == 0 {
		return "0"
	}
	s := strconv.FormatFloat(value, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// formatPercent renders a signed percent column, "-" when missing.
func formatPercent(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *value)
}

// formatPrice picks a precision that keeps small-cap prices readable.
func formatPrice(value float64) string {
	switch {
	case value == 0:
		return "-"
	case value >= 1:
		return formatFloat(value, 2)
	case value >= 0.01:
		return formatFloat(value, 4)
	default:
		return formatFloat(value, 8)
	}
}

// asciiTable renders rows with padded columns.
func asciiTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
		}
		b.WriteString("\n")
	}
	writeRow(headers)
	separators := make([]string, len(headers))
	for i, w := range widths {
		separators[i] = strings.Repeat("-", w)
	}
	writeRow(separators)
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderTrendingTable builds the fenced trending overview.
func renderTrendingTable(coins []market.CoinSummary) string {
	rows := make([][]string, 0, len(coins))
	for i, coin := range coins {
		rank := "-"
		if coin.MarketCapRank > 0 {
			rank = strconv.Itoa(coin.MarketCapRank)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			coin.Symbol,
			coin.Name,
			rank,
			formatPrice(coin.PriceUSD),
			formatPercent(coin.Change24h),
		})
	}
	table := asciiTable([]string{"#", "Symbol", "Name", "Rank", "Price (USD)", "24h"}, rows)
	return "<pre>" + htmlEscape(table) + "</pre>"
}

// renderAnalysisTable builds the fenced technical overview for the
// analyzed coins.
func renderAnalysisTable(details []market.CoinDetails) string {
	rows := make([][]string, 0, len(details))
	for _, d := range details {
		rank := "-"
		if d.MarketCapRank > 0 {
			rank = strconv.Itoa(d.MarketCapRank)
		}
		rows = append(rows, []string{
			d.Name,
			rank,
			formatPrice(d.PriceUSD),
			formatPercent(d.Change24h),
			formatPercent(d.Change7d),
			formatPercent(d.Change30d),
		})
	}
	table := asciiTable([]string{"Name", "Rank", "Price (USD)", "24h", "7d", "30d"}, rows)
	return "<pre>" + htmlEscape(table) + "</pre>"
}

// renderSentimentLine formats the scored verdict for one coin.
func renderSentimentLine(details market.CoinDetails, counts *market.NewsCounts) string {
	score := sentiment.Score(details.Momentum(), counts)
	return fmt.Sprintf("%s: %d/100 (%s)", htmlBold(details.Name), score, sentiment.Label(score))
}

// renderConversionLine is one price row of a conversion answer.
func renderConversionLine(lang string, amount float64, base, quote string, pq market.PriceQuote) string {
	name := pq.Name
	if name == "" {
		name = pq.Symbol
	}
	source := pq.Source
	if link, ok := sourceLinks[pq.Source]; ok {
		source = fmt.Sprintf("<a href=%q>%s</a>", link, htmlEscape(pq.Source))
	}
	line := fill(msg(lang, "conversion_row"), map[string]string{
		"amount": formatFloat(amount, 8),
		"base":   htmlEscape(base),
		"name":   htmlEscape(name),
		"value":  htmlCode(formatFloat(amount*pq.Price, 5)),
		"quote":  htmlEscape(quote),
		"source": source,
	})
	if changes := renderChangeBlock(pq); changes != "" {
		line += "\n" + changes
	}
	return line
}

// renderChangeBlock summarizes the percent-change windows a quote
// carries, or returns "" when it has none.
func renderChangeBlock(pq market.PriceQuote) string {
	var parts []string
	for _, window := range []struct {
		label string
		value *float64
	}{
		{"1h", pq.Change1h},
		{"4h", pq.Change4h},
		{"24h", pq.Change24h},
		{"7d", pq.Change7d},
	} {
		if window.value != nil {
			parts = append(parts, window.label+" "+formatPercent(window.value))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "<blockquote>• " + htmlEscape(strings.Join(parts, " | ")) + "</blockquote>"
}

// renderGasResponse renders the tiered gas report.
func renderGasResponse(quote *providers.GasQuote) string {
	currency := quote.ResolvedCurrency
	native := quote.Network.NativeSymbol

	lines := []string{htmlBold(quote.Network.Name + " Gas Fees"), ""}
	for _, tier := range quote.Tiers {
		lines = append(lines, fmt.Sprintf("<b>%s %s</b>", tier.Emoji, htmlEscape(tier.Label)))
		lines = append(lines, fmt.Sprintf("<blockquote>• Total: %s gwei per gas</blockquote>",
			htmlCode(formatFloat(tier.TotalGwei, 3))))
		lines = append(lines, fmt.Sprintf("<blockquote>• Base: %s gwei | Priority: %s gwei</blockquote>",
			htmlCode(formatFloat(tier.BaseComponentGwei, 3)), htmlCode(formatFloat(tier.PriorityComponentGwei, 3))))
		if tier.ETASeconds > 0 {
			lines = append(lines, fmt.Sprintf("<blockquote>• ETA: ~%d sec</blockquote>", tier.ETASeconds))
		}
		lines = append(lines, fmt.Sprintf("<blockquote>• Transfer (~%d gas): %s %s%s</blockquote>",
			quote.TransferGasLimit, htmlCode(formatFloat(tier.TransferFeeNative, 8)), native,
			fiatSuffix(tier.TransferFeeCurrency, currency)))
		lines = append(lines, fmt.Sprintf("<blockquote>• Contract (~%d gas): %s %s%s</blockquote>",
			quote.ContractGasLimit, htmlCode(formatFloat(tier.ContractFeeNative, 8)), native,
			fiatSuffix(tier.ContractFeeCurrency, currency)))
		lines = append(lines, "")
	}

	if len(quote.Actions) > 0 {
		lines = append(lines, "<b>Featured Actions</b>")
		for _, action := range quote.Actions {
			var segments []string
			for _, tier := range quote.Tiers {
				if fee := action.CurrencyCosts[tier.Key]; fee != nil {
					segments = append(segments, fmt.Sprintf("%s: <b>%s</b> %s",
						tier.Label, formatFloat(*fee, 5), currency))
				} else {
					segments = append(segments, fmt.Sprintf("%s: %s %s",
						tier.Label, htmlCode(formatFloat(action.NativeCosts[tier.Key], 8)), native))
				}
			}
			lines = append(lines, fmt.Sprintf("<blockquote>• %s — %s</blockquote>",
				htmlEscape(action.Action), strings.Join(segments, " | ")))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "<b>Details</b>")
	lines = append(lines, fmt.Sprintf("<blockquote>• Network: %s (chain ID %d)</blockquote>",
		htmlEscape(quote.Network.Name), quote.Network.ChainID))
	lines = append(lines, fmt.Sprintf("<blockquote>• Native token: %s</blockquote>", native))
	if quote.NativePriceInCurrency != nil {
		lines = append(lines, fmt.Sprintf("<blockquote>• %s price: %s %s</blockquote>",
			native, formatFloat(*quote.NativePriceInCurrency, 2), currency))
	}
	lines = append(lines, fmt.Sprintf("<blockquote>• Base fee (est.): %s gwei | Priority (avg): %s gwei</blockquote>",
		htmlCode(formatFloat(quote.BaseFeeGwei, 3)), htmlCode(formatFloat(quote.PriorityFeeGwei, 3))))
	lines = append(lines, fmt.Sprintf("<blockquote>• RPC source: %s</blockquote>", htmlEscape(quote.RPCURL)))

	if quote.RequestedCurrency != quote.ResolvedCurrency {
		lines = append(lines, "", fmt.Sprintf(
			"<i>Note: Displayed amounts use %s because rates for %s were unavailable.</i>",
			quote.ResolvedCurrency, quote.RequestedCurrency))
	}
	lines = append(lines, "", "<i>Gas data from on-chain RPC; token prices via market feeds.</i>")
	return strings.Join(lines, "\n")
}

func fiatSuffix(amount *float64, currency string) string {
	if amount == nil {
		return ""
	}
	return fmt.Sprintf(" (~<b>%s</b> %s)", formatFloat(*amount, 5), currency)
}

// renderRPCResponse renders the network directory listing.
func renderRPCResponse(query string, networks []*providers.Network) string {
	lines := []string{htmlBold("RPC Directory · " + strings.ToUpper(query)), ""}
	for _, network := range networks {
		title := fmt.Sprintf("%s (chain ID %d)", network.Name, network.ChainID)
		if network.IsTestnet {
			title += " — Testnet"
		}
		lines = append(lines, htmlBold(title))

		details := []string{"Symbol: " + network.NativeSymbol}
		if network.Chain != "" {
			details = append(details, "Chain code: "+network.Chain)
		}
		if network.ShortName != "" {
			details = append(details, "Short: "+network.ShortName)
		}
		lines = append(lines, "<blockquote>• "+htmlEscape(strings.Join(details, " | "))+"</blockquote>")

		const maxRPC = 10
		urls := network.RPCURLs
		if len(urls) > maxRPC {
			urls = urls[:maxRPC]
		}
		if len(urls) > 0 {
			block := []string{"• RPC endpoints:"}
			for _, u := range urls {
				block = append(block, htmlCode(u))
			}
			if extra := len(network.RPCURLs) - maxRPC; extra > 0 {
				block = append(block, htmlEscape(fmt.Sprintf("(+%d more on Chainlist)", extra)))
			}
			lines = append(lines, "<blockquote>"+strings.Join(block, "\n")+"</blockquote>")
		}

		if network.InfoURL != "" {
			lines = append(lines, "<blockquote>• Info: "+htmlLink(network.InfoURL, network.InfoURL)+"</blockquote>")
		}
		if len(network.Explorers) > 0 {
			const maxExplorers = 5
			var refs []string
			for i, explorer := range network.Explorers {
				if i == maxExplorers {
					refs = append(refs, htmlEscape(fmt.Sprintf("(+%d more)", len(network.Explorers)-maxExplorers)))
					break
				}
				refs = append(refs, htmlLink(explorer.URL, explorer.Name))
			}
			lines = append(lines, "<blockquote>• Explorers: "+strings.Join(refs, ", ")+"</blockquote>")
		}
		lines = append(lines, "")
	}
	lines = append(lines, "<i>RPC listings sourced from Chainlist.</i>")
	return strings.Join(lines, "\n")
}
