// Command retriever ranks a batch of queries against a precomputed inverted
// index and prints the top documents per query, optionally scoring the run
// against relevance judgments.
//
// Usage:
//
//	retriever --index index.json --queries queries.json --scheme tfidf [--qrels qrels.txt]
//	retriever --index index.json --query "free text query" --scheme tf
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	indexPath    string
	queriesPath  string
	queryText    string
	scheme       string
	qrelsPath    string
	outputPath   string
	reportPath   string
	limit        int
	shards       int
	legacyBinary bool
	noStem       bool
	keepStop     bool
	logLevel     string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("retriever", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	flagSet.StringVarP(&opts.indexPath, "index", "i", "", "inverted index file (.json, .yaml, .cbor, optionally .gz/.zst/.lz4)")
	flagSet.StringVarP(&opts.queriesPath, "queries", "q", "", "query file mapping query id to term counts")
	flagSet.StringVar(&opts.queryText, "query", "", "single free-text query instead of --queries")
	flagSet.StringVarP(&opts.scheme, "scheme", "w", "", "term weighting: tfidf, tf or binary")
	flagSet.StringVar(&opts.qrelsPath, "qrels", "", "relevance judgments (\"qid docid\" lines) to evaluate against")
	flagSet.StringVarP(&opts.outputPath, "output", "o", "", "results file (default stdout)")
	flagSet.StringVar(&opts.reportPath, "report", "", "write the evaluation report as JSON to this file")
	flagSet.IntVarP(&opts.limit, "limit", "k", ranker.DefaultLimit, "documents returned per query (overrides retrieval.topK)")
	flagSet.IntVar(&opts.shards, "shards", 0, "score across this many document-range shards")
	flagSet.BoolVar(&opts.legacyBinary, "legacy-binary", false, "binary scheme: k-th matching term adds k*k")
	flagSet.BoolVar(&opts.noStem, "no-stem", false, "do not stem --query terms")
	flagSet.BoolVar(&opts.keepStop, "keep-stop-words", false, "keep stop words in --query")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if (opts.queriesPath == "") == (opts.queryText == "") {
		return errors.New("exactly one of --queries or --query is required")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger.Setup(stderr, opts.logLevel, "text")
	applyFlags(flagSet, &opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := indexer.Open(ctx, cfg)
	if err != nil {
		return err
	}
	var scorerOpts []ranker.Option
	if cfg.Retrieval.LegacyBinary {
		scorerOpts = append(scorerOpts, ranker.WithLegacyBinaryAccumulation())
	}
	exec := executor.New(ranker.New(engine.Digest, scorerOpts...),
		executor.WithShards(cfg.Retrieval.Shards),
		executor.WithDefaultLimit(cfg.Retrieval.TopK),
		executor.WithMaxResults(cfg.Retrieval.MaxResults),
	)

	out := stdout
	if opts.outputPath != "" {
		f, err := os.Create(opts.outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	if opts.queryText != "" {
		plan := parser.Parse(opts.queryText, tokenizer.Options{Stem: !opts.noStem, StopWords: !opts.keepStop})
		res, err := exec.ExecuteText(ctx, opts.queryText, plan.Terms, 0)
		if err != nil {
			return err
		}
		for _, doc := range res.Results {
			fmt.Fprintf(w, "%d\t%.6f\n", doc.DocID, doc.Score)
		}
		return nil
	}

	queries, err := index.LoadQueries(opts.queriesPath)
	if err != nil {
		return err
	}
	results, err := rankAll(ctx, exec, queries, 0)
	if err != nil {
		return err
	}
	writeResults(w, results)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if opts.qrelsPath == "" {
		return nil
	}
	report, err := evaluate(opts.qrelsPath, results)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "queries=%d retrieved=%d relevant=%d relevant_retrieved=%d\n",
		len(report.Queries), report.Retrieved, report.Relevant, report.RelevantRetrieved)
	fmt.Fprintf(stderr, "precision=%.4f recall=%.4f f_measure=%.4f\n", report.Precision, report.Recall, report.F)
	if opts.reportPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := os.WriteFile(opts.reportPath, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	return nil
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(flagSet *pflag.FlagSet, opts *options, cfg *config.Config) {
	if opts.indexPath != "" {
		cfg.Index.Source = config.SourceFile
		cfg.Index.Path = opts.indexPath
	}
	if flagSet.Changed("scheme") {
		cfg.Retrieval.Scheme = opts.scheme
	}
	if flagSet.Changed("shards") {
		cfg.Retrieval.Shards = opts.shards
	}
	if flagSet.Changed("legacy-binary") {
		cfg.Retrieval.LegacyBinary = opts.legacyBinary
	}
	if flagSet.Changed("limit") {
		cfg.Retrieval.TopK = opts.limit
		cfg.Retrieval.MaxResults = max(cfg.Retrieval.MaxResults, opts.limit)
	}
}

// rankAll ranks queries in ascending id order.
func rankAll(ctx context.Context, exec *executor.Executor, queries map[int]index.Query, limit int) (map[int][]int, error) {
	ids := make([]int, 0, len(queries))
	for id := range queries {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	results := make(map[int][]int, len(queries))
	for _, id := range ids {
		res, err := exec.Execute(ctx, queries[id], limit)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", id, err)
		}
		results[id] = ranker.DocIDs(res.Results)
	}
	return results, nil
}

// writeResults prints one "query_id doc_id" line per ranked document.
func writeResults(w io.Writer, results map[int][]int) {
	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		for _, doc := range results[id] {
			fmt.Fprintf(w, "%d %d\n", id, doc)
		}
	}
}

func evaluate(path string, results map[int][]int) (evaluation.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return evaluation.Report{}, fmt.Errorf("opening judgments: %w", err)
	}
	defer f.Close()
	judgments, err := evaluation.LoadJudgments(f)
	if err != nil {
		return evaluation.Report{}, err
	}
	return evaluation.Evaluate(results, judgments), nil
}
