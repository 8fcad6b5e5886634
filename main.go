package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-rag-qa/config"
	"go-rag-qa/logging"
	"go-rag-qa/provider"
	"go-rag-qa/rag"
)

type rootOptions struct {
	envFile      string
	storePath    string
	documents    []string
	topK         int
	similarity   string
	forceRebuild bool
	logLevel     string
	chat         bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "ragqa [question...]",
		Short:         "Answer questions from your documents",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := setup(cmd, opts, errOut)
			if err != nil {
				return err
			}
			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			if opts.chat {
				return runChat(ctx, p, in, out)
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				query = cfg.DefaultQuery
			}
			fmt.Fprintf(out, "\nQuestion: %s\n", query)
			return runQuery(ctx, p, out, query)
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading RAGQA_* variables")
	flags.StringVar(&opts.storePath, "store", "", "vector store artifact (.json, .db, .sqlite)")
	flags.StringSliceVar(&opts.documents, "doc", nil, "source document, repeatable")
	flags.IntVarP(&opts.topK, "top-k", "k", 0, "number of passages to retrieve")
	flags.StringVar(&opts.similarity, "similarity", "", "similarity function: dot or cosine")
	flags.BoolVar(&opts.forceRebuild, "force-rebuild", false, "rebuild the store even when the artifact exists")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.Flags().BoolVar(&opts.chat, "chat", false, "start an interactive chat session")

	rootCmd.AddCommand(newBuildCmd(opts, out, errOut), newServeCmd(opts, errOut))
	return rootCmd
}

func newBuildCmd(opts *rootOptions, out, errOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the vector store, or load it when it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, ctx, err := setup(cmd, opts, errOut)
			if err != nil {
				return err
			}
			emb, err := provider.NewEmbedder(ctx, cfg.Embedder)
			if err != nil {
				return fmt.Errorf("init embedder: %w", err)
			}
			store, err := openStore(ctx, cfg, emb)
			if err != nil {
				return err
			}
			printStoreSummary(out, cfg.StorePath, store)
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions, errOut io.Writer) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question-answering API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, ctx, err := setup(cmd, opts, errOut)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			return NewServer(p, logging.FromContext(ctx)).Run(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	return cmd
}

// setup loads the configuration, applies flag overrides and attaches the
// logger to the command context.
func setup(cmd *cobra.Command, opts *rootOptions, errOut io.Writer) (*config.Config, context.Context, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, nil, err
	}
	if err := applyFlags(cmd, opts, cfg); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log, errOut)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return cfg, logging.WithLogger(ctx, logger), nil
}

func applyFlags(cmd *cobra.Command, opts *rootOptions, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.StorePath = opts.storePath
	}
	if flags.Changed("doc") {
		cfg.Documents = opts.documents
	}
	if flags.Changed("top-k") {
		cfg.TopK = opts.topK
	}
	if flags.Changed("similarity") {
		cfg.Similarity = opts.similarity
	}
	if flags.Changed("force-rebuild") {
		cfg.ForceRebuild = opts.forceRebuild
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	return cfg.Validate()
}

func buildOptions(cfg *config.Config) rag.BuildOptions {
	return rag.BuildOptions{
		ChunkWidth:   cfg.ChunkWidth,
		Concurrency:  cfg.Build.Concurrency,
		Retries:      cfg.Build.Retries,
		RetryBackoff: cfg.Build.RetryBackoff,
		ForceRebuild: cfg.ForceRebuild,
	}
}

var errNoDocuments = errors.New("no documents configured: pass --doc or set RAGQA_DOCUMENTS")

func openStore(ctx context.Context, cfg *config.Config, emb rag.Embedder) (*rag.VectorStore, error) {
	if len(cfg.Documents) == 0 {
		exists, err := rag.StoreExists(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		if !exists || cfg.ForceRebuild {
			return nil, errNoDocuments
		}
	}
	builder, err := rag.NewBuilder(emb, buildOptions(cfg))
	if err != nil {
		return nil, err
	}
	return builder.BuildOrLoad(ctx, cfg.Documents, cfg.StorePath)
}

func newPipeline(ctx context.Context, cfg *config.Config) (*rag.Pipeline, error) {
	emb, err := provider.NewEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	store, err := openStore(ctx, cfg, emb)
	if err != nil {
		return nil, err
	}
	if store.Len() > 0 && store.Model() != emb.ModelName() {
		logging.FromContext(ctx).Warn("store was built with a different embedding model",
			zap.String("store_model", store.Model()),
			zap.String("embedder_model", emb.ModelName()))
	}
	sim, err := rag.SimilarityByName(cfg.Similarity)
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(rag.WithCache(emb, cfg.Cache.Size, cfg.Cache.TTL), rag.WithSimilarity(sim))
	if err != nil {
		return nil, err
	}
	gen, err := provider.NewGenerator(ctx, cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	answerer, err := rag.NewAnswerer(gen, cfg.ContextLabel)
	if err != nil {
		return nil, err
	}
	return rag.NewPipeline(store, retriever, answerer, cfg.TopK)
}

// runQuery answers one question. Synthesis failures are printed as the
// answer; retrieval failures are returned.
func runQuery(ctx context.Context, p *rag.Pipeline, out io.Writer, query string) error {
	fmt.Fprintln(out, "Finding relevant passages...")
	passages, err := p.Retrieve(ctx, query, 0)
	if err != nil {
		return fmt.Errorf("retrieve passages: %w", err)
	}
	fmt.Fprintln(out, "Generating answer...")
	answer := p.Answer(ctx, query, passages)
	fmt.Fprintf(out, "\nAnswer:\n%s\n", answer)
	return nil
}

func printStoreSummary(out io.Writer, path string, store *rag.VectorStore) {
	fmt.Fprintf(out, "Vector store %s: %d entries", path, store.Len())
	if store.Len() > 0 {
		fmt.Fprintf(out, ", dimension %d, model %s", store.Dimension(), store.Model())
	}
	fmt.Fprintln(out)
	for _, src := range store.Sources() {
		fmt.Fprintf(out, "  %s\n", src)
	}
}
