package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joelkehle/trialscope/internal/benchmarks"
	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/evaluation"
	"github.com/joelkehle/trialscope/internal/feasibility"
	"github.com/joelkehle/trialscope/internal/httpapi"
	"github.com/joelkehle/trialscope/internal/samplesize"
	"github.com/joelkehle/trialscope/internal/store"
)

func main() {
	inputPath := flag.String("input", "", "Path to a concept JSON object or array (defaults to stdin)")
	outputPath := flag.String("output", "", "Path to write the result (defaults to stdout)")
	format := flag.String("format", "json", "Output format: json, markdown or html")
	dbPath := flag.String("db", "", "Optional SQLite archive path")
	benchmarksPath := flag.String("benchmarks", "", "Optional regional benchmark TOML overriding the built-in table")
	tablesPath := flag.String("tables", "", "Optional feasibility tables TOML overriding the built-in tables")
	useAI := flag.Bool("ai", false, "Use the Anthropic estimator and assumptions generator (needs ANTHROPIC_API_KEY)")
	aiTimeout := flag.Duration("ai-timeout", samplesize.DefaultEstimatorTimeout, "Timeout for the AI sample-size estimator")
	parallel := flag.Int("parallel", evaluation.DefaultParallelism, "Concepts evaluated concurrently in a batch")
	listen := flag.String("listen", "", "Serve the HTTP API on this address instead of evaluating -input (e.g. :8080)")
	flag.Parse()

	switch *format {
	case "json", "markdown", "html":
	default:
		log.Fatalf("unknown -format %q", *format)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := setupTracing(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	calc, assumptions := buildCollaborators(*benchmarksPath, *tablesPath, *useAI, *aiTimeout)
	svc, err := evaluation.NewService(evaluation.Config{
		Feasibility: calc,
		Assumptions: assumptions,
		Parallelism: *parallel,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *listen != "" {
		if err := serve(ctx, *listen, *dbPath, svc); err != nil {
			log.Fatal(err)
		}
		return
	}

	raw, err := readInput(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	concepts, batch, err := decodeConcepts(raw)
	if err != nil {
		log.Fatalf("decode input JSON: %v", err)
	}

	var evs []evaluation.Evaluation
	if batch {
		evs, err = svc.EvaluateBatch(ctx, concepts)
	} else {
		var ev evaluation.Evaluation
		ev, err = svc.Evaluate(ctx, concepts[0])
		evs = []evaluation.Evaluation{ev}
	}
	if err != nil {
		log.Fatalf("evaluate: %v", err)
	}
	log.Printf("evaluated %d concept(s)", len(evs))

	if *dbPath != "" {
		if err := archive(ctx, *dbPath, evs); err != nil {
			log.Fatalf("archive: %v", err)
		}
	}

	out, err := render(evs, batch, *format)
	if err != nil {
		log.Fatalf("render: %v", err)
	}
	if err := writeOutput(*outputPath, out); err != nil {
		log.Fatalf("write output: %v", err)
	}
}

func buildCollaborators(benchmarksPath, tablesPath string, useAI bool, aiTimeout time.Duration) (*feasibility.Calculator, commercial.AssumptionsSource) {
	cfg := feasibility.Config{}
	if benchmarksPath != "" {
		table, err := benchmarks.Load(benchmarksPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg.Benchmarks = table
	}
	if tablesPath != "" {
		tables, err := feasibility.LoadTables(tablesPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg.Tables = &tables
	}

	var assumptions commercial.AssumptionsSource = commercial.DefaultAssumptions{}
	if useAI {
		estimator, err := samplesize.NewAnthropicEstimator()
		if err != nil {
			log.Fatal(err)
		}
		cfg.Sizer = samplesize.NewService(estimator).WithTimeout(aiTimeout)
		ai, err := commercial.NewAnthropicAssumptions()
		if err != nil {
			log.Fatal(err)
		}
		assumptions = ai
	}
	return feasibility.NewCalculator(cfg), assumptions
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// decodeConcepts accepts a single concept object or an array of them. batch
// reports which form was given.
func decodeConcepts(raw []byte) ([]concept.Descriptor, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty input")
	}
	if trimmed[0] == '[' {
		var ds []concept.Descriptor
		if err := json.Unmarshal(trimmed, &ds); err != nil {
			return nil, true, err
		}
		if len(ds) == 0 {
			return nil, true, fmt.Errorf("empty concept array")
		}
		return ds, true, nil
	}
	var d concept.Descriptor
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, false, err
	}
	return []concept.Descriptor{d}, false, nil
}

func render(evs []evaluation.Evaluation, batch bool, format string) (string, error) {
	if format == "json" {
		var v any = evs
		if !batch {
			v = evs[0]
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	}

	var md string
	if batch {
		parts := []string{evaluation.BuildBatchMarkdown(evs)}
		for _, ev := range evs {
			parts = append(parts, evaluation.BuildMarkdown(ev))
		}
		md = strings.Join(parts, "\n---\n\n")
	} else {
		md = evaluation.BuildMarkdown(evs[0])
	}
	if format == "html" {
		return evaluation.RenderHTML(md)
	}
	return md, nil
}

func archive(ctx context.Context, path string, evs []evaluation.Evaluation) error {
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveAll(ctx, evs)
}

// serve runs the HTTP API until ctx is cancelled. Request bodies must be
// signed when TRIALSCOPE_API_SECRET is set.
func serve(ctx context.Context, addr, dbPath string, svc *evaluation.Service) error {
	cfg := httpapi.Config{
		Evaluator: svc,
		Secret:    os.Getenv("TRIALSCOPE_API_SECRET"),
	}
	if dbPath != "" {
		st, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		cfg.Archive = st
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("trialscope listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeOutput(path, content string) error {
	if path == "" {
		_, err := fmt.Print(content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
