// Package intent labels an incoming turn so the pipeline knows which flow
// to run. Classification is LLM-backed with a bounded timeout and a
// deterministic heuristic fallback, so a dead model endpoint degrades the
// labels but never blocks a turn.
package intent

import (
	"context"

	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

// Kind is the closed set of turn labels.
type Kind string

const (
	GeneralChat   Kind = "general_chat"
	Trending      Kind = "trending"
	CoinAnalysis  Kind = "coin_analysis"
	ProjectLookup Kind = "project_lookup"
	GasLookup     Kind = "gas_lookup"
	RpcLookup     Kind = "rpc_lookup"
	Conversion    Kind = "conversion"
	Unclear       Kind = "unclear"
)

// Intent is the classification result. Only the fields relevant to Kind
// are populated.
type Intent struct {
	Kind Kind

	// Mention is the raw coin reference for CoinAnalysis ("SUI",
	// "nomor 3", "$BTC"). The resolver interprets it.
	Mention string

	// Project is the project name for ProjectLookup.
	Project string

	// Network and Currency parameterize GasLookup/RpcLookup.
	Network  string
	Currency string

	// Amount, Base, Quote parameterize Conversion.
	Amount float64
	Base   string
	Quote  string
}

// Classifier labels a turn given the session history.
type Classifier interface {
	Classify(ctx context.Context, history []session.Turn, text string) (Intent, error)
}
