// Dealcore Acquisition Runner
//
// Runs the full acquisition lifecycle for one deal: strategy, sourcing,
// data collection, valuation, due diligence, negotiation, and legal close.
// Gated stages pause for a console decision unless -auto-approve is set.
//
// Usage:
//
//	go run ./cmd/dealcore -industry "Software" -acquirer "Vector Industries"
//	go build -o dealcore ./cmd/dealcore && ./dealcore -auto-approve
//
// Environment (loaded from .env when present):
//
//	FMP_API_KEY        financial data API key (required)
//	FMP_BASE_URL       override the FMP endpoint
//	OTLP_ENDPOINT      enable tracing export when set
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mna-automation/dealcore/dealengine/checkpoint"
	"github.com/mna-automation/dealcore/dealengine/config"
	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/observability"
	"github.com/mna-automation/dealcore/dealengine/runtime"
	"github.com/mna-automation/dealcore/dealengine/tools"
	"github.com/mna-automation/dealcore/dealengine/workers"
	"github.com/mna-automation/dealcore/eventbus"
)

// stdLogger implements deal.Logger using the standard library log.
type stdLogger struct {
	fields []any
}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *stdLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *stdLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *stdLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

func (l *stdLogger) Bind(fields ...any) deal.Logger {
	bound := make([]any, 0, len(l.fields)+len(fields))
	bound = append(bound, l.fields...)
	bound = append(bound, fields...)
	return &stdLogger{fields: bound}
}

func (l *stdLogger) log(level, msg string, keysAndValues []any) {
	all := append(append([]any{}, l.fields...), keysAndValues...)
	if len(all) > 0 {
		log.Printf("[%s] %s %v", level, msg, all)
	} else {
		log.Printf("[%s] %s", level, msg)
	}
}

func main() {
	industry := flag.String("industry", "Technology", "target industry for sourcing")
	country := flag.String("country", "United States", "target geography")
	acquirer := flag.String("acquirer", "", "acquiring company name")
	acquirerSymbol := flag.String("acquirer-symbol", "", "acquiring company ticker")
	docsDir := flag.String("docs", "./deal_docs", "output directory for deal documents")
	autoApprove := flag.Bool("auto-approve", false, "approve all checkpoints without prompting")
	checkpointTimeout := flag.Duration("checkpoint-timeout", time.Hour, "how long a checkpoint waits for a decision")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("loading .env: %v", err)
	}

	logger := &stdLogger{}
	logger.Info("dealcore starting", "version", "1.0.0", "industry", *industry)

	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := observability.InitTracer("dealcore", endpoint)
		if err != nil {
			log.Fatalf("initializing tracer: %v", err)
		}
		defer shutdown(context.Background())
		logger.Info("tracing enabled", "endpoint", endpoint)
	}

	apiKey := os.Getenv("FMP_API_KEY")
	if apiKey == "" {
		log.Fatal("FMP_API_KEY is required")
	}
	baseURL := os.Getenv("FMP_BASE_URL")
	if baseURL == "" {
		baseURL = "https://financialmodelingprep.com/api/v3"
	}

	cfg := config.DefaultEngineConfig()
	cfg.CheckpointTimeoutSeconds = int(checkpointTimeout.Seconds())

	bus := eventbus.NewInMemoryBus()
	bus.AddMiddleware(eventbus.NewLoggingMiddleware())

	toolRegistry := gateway.NewRegistry()
	if err := tools.RegisterAll(toolRegistry,
		tools.NewMarketDataClient(baseURL, apiKey),
		tools.NewCompanyScreener(baseURL, apiKey),
		tools.NewDocumentRenderer(*docsDir),
	); err != nil {
		log.Fatalf("registering tools: %v", err)
	}
	gw := gateway.NewGateway(toolRegistry, cfg, logger, bus)

	workerRegistry := workers.NewRegistry()
	if err := workers.RegisterBuiltins(workerRegistry, gw, logger); err != nil {
		log.Fatalf("registering workers: %v", err)
	}

	// The engine pushes cfg.CheckpointTimeoutSeconds onto the gate.
	gate := checkpoint.NewGate(logger, bus, 0)
	engine, err := runtime.NewEngine(
		config.DefaultAcquisitionGraph(), workerRegistry, gate, cfg, logger,
		runtime.WithEventBus(bus),
	)
	if err != nil {
		log.Fatalf("building engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startReviewer(bus, gate, *autoApprove)

	dc := deal.NewDealContext()
	dc.SetFact(workers.FactStrategyInputs, map[string]any{
		"target_criteria": map[string]any{
			"industry":  *industry,
			"geography": []any{*country},
		},
	})
	if *acquirer != "" {
		dc.SetFact(workers.FactAcquirer, map[string]any{
			"name":   *acquirer,
			"symbol": *acquirerSymbol,
		})
	}

	report, err := engine.Run(ctx, dc)
	printReport(report)
	if err != nil {
		logger.Error("run failed", "error", err.Error())
		os.Exit(1)
	}
}

// startReviewer subscribes to checkpoint requests. With auto-approve it
// resolves them immediately; otherwise it prompts on the console.
func startReviewer(bus *eventbus.InMemoryBus, gate *checkpoint.Gate, autoApprove bool) {
	bus.Subscribe("CheckpointRequested", func(ctx context.Context, event eventbus.Event) error {
		req := event.(*eventbus.CheckpointRequested)
		if autoApprove {
			return gate.Resolve(req.CheckpointID, &checkpoint.Resolution{
				Decision:   checkpoint.DecisionApprove,
				ResolvedBy: "auto-approve",
			})
		}
		// Prompt from a goroutine: Submit blocks the stage, not the bus.
		go promptDecision(gate, req)
		return nil
	})
}

func promptDecision(gate *checkpoint.Gate, req *eventbus.CheckpointRequested) {
	fmt.Printf("\n=== CHECKPOINT: %s ===\n%s\n", req.Stage, req.Summary)
	fmt.Print("decision [approve/revise/reject] (add notes after a space): ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		word, notes, _ := strings.Cut(line, " ")
		decision, err := checkpoint.DecisionFromString(word)
		if err != nil {
			fmt.Print("please answer approve, revise, or reject: ")
			continue
		}
		err = gate.Resolve(req.CheckpointID, &checkpoint.Resolution{
			Decision:   decision,
			Notes:      strings.TrimSpace(notes),
			ResolvedBy: "console",
		})
		if err != nil {
			fmt.Printf("could not resolve: %v\n", err)
		}
		return
	}
}

func printReport(report *runtime.RunReport) {
	fmt.Printf("\n=== RUN %s: %s (%s) ===\n", report.RunID, report.State, report.Duration().Round(time.Millisecond))
	for _, stage := range deal.AllStages() {
		result, ok := report.Stages[stage]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-15s %s", stage, result.Status)
		if result.Revisions > 0 {
			line += fmt.Sprintf(" (revisions: %d)", result.Revisions)
		}
		fmt.Println(line)
	}
	if report.Err != nil {
		fmt.Printf("  failed at %s (%s): %v\n", report.FailedStage, report.ErrorKind, report.Err)
	}
}
