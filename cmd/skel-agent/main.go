package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/agent"
	"github.com/Widiskel/skel-crypto-agent/internal/config"
	"github.com/Widiskel/skel-crypto-agent/internal/events"
	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/intent"
	"github.com/Widiskel/skel-crypto-agent/internal/llm"
	"github.com/Widiskel/skel-crypto-agent/internal/logging"
	"github.com/Widiskel/skel-crypto-agent/internal/providers"
	"github.com/Widiskel/skel-crypto-agent/internal/resolver"
	"github.com/Widiskel/skel-crypto-agent/internal/server"
	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

var version = "1.0.0"

var (
	configPath string
	verbose    bool
	addr       string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skel-agent",
	Short: "Skel Crypto Agent - conversational crypto market assistant",
	Long: `Skel Crypto Agent answers crypto questions over a streaming event
protocol: trending coins, per-coin technical and sentiment analysis,
price conversion, project research, gas fees, and RPC lookups.

Run without arguments to start the HTTP/SSE server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Options{Level: level, Development: cfg.Logging.Development})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/SSE server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent on the terminal",
	Long:  "Starts a local REPL session. Events stream to stderr, replies to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skel-agent %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address override")
	rootCmd.AddCommand(serveCmd, chatCmd, versionCmd)
}

// buildAgent wires every component from the loaded configuration.
func buildAgent() (*agent.Agent, *session.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	gw := gateway.New(gateway.Options{
		MaxRetries:      cfg.Providers.MaxRetries,
		BackoffBase:     cfg.GetBackoffBase(),
		DefaultCooldown: cfg.GetCooldown(),
	}, logger)

	store := session.NewStore(session.Options{
		MaxHistory:    cfg.Session.MaxTurns * 2,
		IdleTTL:       cfg.GetSessionIdleTTL(),
		SweepInterval: cfg.GetSweepInterval(),
	}, logger)

	coingecko := providers.NewCoinGeckoWithConfig(providers.CoinGeckoConfig{
		APIKey:  cfg.Providers.CoinGeckoAPIKey,
		Timeout: cfg.GetProviderTimeout(),
	}, gw, logger)
	cryptopanic := providers.NewCryptoPanicWithConfig(providers.CryptoPanicConfig{
		APIToken: cfg.Providers.CryptoPanicAPIKey,
		Timeout:  cfg.GetProviderTimeout(),
	}, gw, logger)
	tavily := providers.NewTavilyWithConfig(providers.TavilyConfig{
		APIKey:      cfg.Providers.TavilyAPIKey,
		SearchDepth: cfg.Providers.TavilySearchDepth,
		MaxResults:  cfg.Providers.TavilyMaxResults,
	}, gw, logger)
	cryptorank := providers.NewCryptoRankWithConfig(providers.CryptoRankConfig{
		APIKey:  cfg.Providers.CryptoRankAPIKey,
		Timeout: cfg.GetProviderTimeout(),
	}, gw, logger)
	chainlist := providers.NewChainlistWithConfig(providers.ChainlistConfig{
		URL: cfg.Providers.ChainlistURL,
	}, gw, logger)

	fiat := providers.NewFiatConverter(gw)
	prices := providers.NewPriceService([]providers.PriceSource{
		providers.NewBinance(gw),
		providers.NewBybit(gw),
		providers.NewCoinMarketCap(gw, cfg.Providers.CoinMarketCapAPIKey),
		providers.NewDefiLlama(gw, coingecko.ResolveCoinIDs),
	}, fiat, logger)
	gas := providers.NewGasService(chainlist, prices, logger)

	client := llm.NewFireworksClientWithConfig(llm.FireworksConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: 0.5,
		Timeout:     cfg.GetLLMTimeout(),
	}, logger)
	classifier := intent.NewLLMClassifier(client, cfg.GetClassifierTimeout(), logger)
	res := resolver.New(store, coingecko, cfg.Providers.SearchTopK, logger)

	ag := agent.New(agent.Deps{
		Store:       store,
		Classifier:  classifier,
		Resolver:    res,
		LLM:         client,
		CoinGecko:   coingecko,
		CryptoPanic: cryptopanic,
		Tavily:      tavily,
		CryptoRank:  cryptorank,
		Chainlist:   chainlist,
		Gas:         gas,
		Prices:      prices,
	}, agent.Options{
		DetailFanout: cfg.Providers.DetailFanout,
	}, logger)

	return ag, store, nil
}

func runServe() error {
	ag, store, err := buildAgent()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartSweeper(ctx)

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, ag, logger)
	logger.Info("starting",
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version),
		zap.String("addr", cfg.Server.Addr))
	return srv.Run(ctx)
}

func runChat() error {
	ag, store, err := buildAgent()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	store.StartSweeper(ctx)

	activityID := uuid.NewString()
	fmt.Println("Skel Crypto Agent. Type your question, or /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if line == "/reset" {
			ag.Reset(activityID)
			fmt.Println("session reset")
			continue
		}

		sink := events.SinkFunc(func(ev events.Event) error {
			switch ev.Kind {
			case events.KindFinalResponse:
				fmt.Print(ev.Text)
				if ev.StreamDone {
					fmt.Println()
				}
			case events.KindError:
				if payload, ok := ev.Payload.(events.ErrorPayload); ok {
					fmt.Fprintf(os.Stderr, "error: %s\n", payload.Message)
				}
			default:
				fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Kind, ev.Text)
			}
			return nil
		})
		if err := ag.HandleTurn(ctx, activityID, line, sink); err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
		fmt.Println()
	}
	return scanner.Err()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
