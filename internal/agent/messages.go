package agent

import (
	"regexp"
	"strings"
)

// langToken is an optional per-turn language override prefix, e.g.
// "[LANG=ID] analisa bitcoin". Once seen, the preference sticks to the
// session.
var langToken = regexp.MustCompile(`(?i)^\s*\[LANG=(EN|ID)\]\s*`)

// extractLanguage strips a language token from text and returns the
// remaining text plus the declared language ("" when absent).
func extractLanguage(text string) (string, string) {
	m := langToken.FindStringSubmatch(text)
	if m == nil {
		return text, ""
	}
	return strings.TrimSpace(text[len(m[0]):]), strings.ToUpper(m[1])
}

// messages holds the user-facing strings per language. Keys missing
// from a language fall back to English.
var messages = map[string]map[string]string{
	"EN": {
		"welcome":                "Hello! I'm the Skel Crypto Agent. Ask me about crypto, prices, or general market insights.",
		"llm_start":              "Generating reply...",
		"llm_error":              "Sorry, I can't respond right now. Please try again later.",
		"clarify_reference":      "I couldn't work out which coin you mean by {mention}. Could you give me its name or ticker?",
		"trending_intro":         "Here are the coins trending right now:",
		"trending_error":         "I couldn't fetch the trending list right now. Please try again soon.",
		"analysis_error":         "I couldn't complete the analysis for {mention}. Please try again soon.",
		"conversion_fetch":       "Fetching {base}/{quote} price...",
		"conversion_error":       "Failed to fetch the latest price. Please try again soon.",
		"conversion_missing":     "Sorry, I couldn't find a live price for {base}/{quote}.",
		"conversion_intro":       "Here's the latest snapshot for {amount} {base} → {quote}:",
		"conversion_header":      "Here are the top live prices for {amount} {base} → {quote}:",
		"conversion_row":         "{amount} {base} ({name}) = {value} {quote} (source: {source})",
		"project_start":          "Analyzing {project}…",
		"project_not_configured": "Project analysis isn't available right now.",
		"project_error":          "I couldn't complete the project analysis. Please try again soon.",
		"gas_fetch":              "Fetching current gas fees…",
		"gas_error":              "I couldn't fetch gas data right now. Please try again later.",
		"rpc_fetch":              "Looking up RPC endpoints…",
		"rpc_error":              "I couldn't retrieve RPC data right now. Please try again later.",
		"rpc_not_found":          "I couldn't find RPC endpoints for {network}.",
		"rate_limited":           "The data provider is cooling down after too many requests. Please retry in about {retry}.",
		"upstream_error":         "The market data service is having trouble right now. Please try again shortly.",
	},
	"ID": {
		"welcome":                "Halo! Aku Skel Crypto Agent. Tanya apa saja tentang crypto, harga, atau analisis pasar.",
		"llm_start":              "Menyusun jawaban...",
		"llm_error":              "Maaf, aku belum bisa menjawab sekarang. Coba lagi sebentar lagi.",
		"clarify_reference":      "Aku belum yakin koin mana yang kamu maksud dengan {mention}. Bisa sebutkan nama atau ticker-nya?",
		"trending_intro":         "Berikut koin yang sedang trending saat ini:",
		"trending_error":         "Aku belum bisa mengambil daftar trending sekarang. Coba lagi nanti.",
		"analysis_error":         "Analisis untuk {mention} belum bisa diselesaikan. Coba lagi nanti.",
		"conversion_fetch":       "Mengambil harga {base}/{quote}...",
		"conversion_error":       "Gagal mengambil harga terbaru. Coba lagi nanti.",
		"conversion_missing":     "Maaf, aku belum menemukan harga {base}/{quote} saat ini.",
		"conversion_intro":       "Berikut hasil terkini {amount} {base} → {quote}:",
		"conversion_header":      "Inilah harga terbaru untuk {amount} {base} → {quote}:",
		"conversion_row":         "{amount} {base} ({name}) = {value} {quote} (sumber: {source})",
		"project_start":          "Menganalisis {project}…",
		"project_not_configured": "Analisis proyek belum tersedia saat ini.",
		"project_error":          "Analisis proyek gagal dilakukan. Coba lagi nanti.",
		"gas_fetch":              "Mengambil data gas terkini…",
		"gas_error":              "Aku belum bisa mendapatkan data gas sekarang. Coba lagi sebentar lagi.",
		"rpc_fetch":              "Mengambil daftar RPC…",
		"rpc_error":              "Aku belum bisa mengambil data RPC sekarang. Coba lagi nanti.",
		"rpc_not_found":          "Aku tidak menemukan RPC untuk {network}.",
		"rate_limited":           "Penyedia data sedang membatasi permintaan. Coba lagi dalam sekitar {retry}.",
		"upstream_error":         "Layanan data pasar sedang bermasalah. Coba lagi sebentar lagi.",
	},
}

// languageInstructions steer the LLM's reply language.
var languageInstructions = map[string]string{
	"EN": "You are a helpful, professional assistant. Always respond in English. " +
		"Use courteous, neutral wording and avoid profanity or offensive language. " +
		"If the user writes in another language, respond in English unless explicitly asked not to.",
	"ID": "Kamu adalah asisten yang ramah dan profesional. Selalu balas dalam Bahasa Indonesia. " +
		"Gunakan bahasa santun dan netral serta hindari kata kasar atau ofensif. " +
		"Jika pengguna memakai bahasa lain, tetap balas dalam Bahasa Indonesia kecuali diminta sebaliknya.",
}

// sourceLinks attribute price quotes in rendered output.
var sourceLinks = map[string]string{
	"CoinGecko":     "https://www.coingecko.com/",
	"Binance":       "https://www.binance.com/en",
	"Bybit":         "https://www.bybit.com/en/",
	"CoinMarketCap": "https://coinmarketcap.com/",
	"DefiLlama":     "https://defillama.com/",
	"ExchangeRate":  "https://open.er-api.com/",
}

// msg returns the template for key in lang, falling back to English.
func msg(lang, key string) string {
	if m, ok := messages[lang]; ok {
		if template, ok := m[key]; ok {
			return template
		}
	}
	return messages["EN"][key]
}

// vagueMention fills the clarify template when no concrete mention was
// captured from the user's text.
func vagueMention(lang string) string {
	if lang == "ID" {
		return "itu"
	}
	return "that"
}

// fill substitutes {name} placeholders.
func fill(template string, args map[string]string) string {
	for key, value := range args {
		template = strings.ReplaceAll(template, "{"+key+"}", value)
	}
	return template
}

func languageInstruction(lang string) string {
	if instruction, ok := languageInstructions[lang]; ok {
		return instruction
	}
	return languageInstructions["EN"]
}
