package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillgen/quill/internal/cache"
	"github.com/quillgen/quill/internal/config"
	"github.com/quillgen/quill/internal/feedback"
	"github.com/quillgen/quill/internal/gitctx"
	"github.com/quillgen/quill/internal/output"
	"github.com/quillgen/quill/internal/pipeline"
	"github.com/quillgen/quill/internal/providers"
	"github.com/quillgen/quill/internal/redact"
	"github.com/quillgen/quill/internal/tokens"
)

// Shared generate flags
var (
	flagProvider     string
	flagModel        string
	flagMapModel     string
	flagConvention   string
	flagFormat       string
	flagOut          string
	flagExclude      string
	flagContextLines int
	flagConcurrency  int
	flagTokenLimit   int
	flagSafetyMargin int
	flagNoRedact     bool
	flagNoCache      bool
	flagNoFilter     bool
	flagNoMapReduce  bool
	flagVerbose      bool
)

func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Primary model name")
	cmd.Flags().StringVar(&flagMapModel, "map-model", "", "Model for map-stage chunk summaries")
	cmd.Flags().StringVar(&flagConvention, "convention", "", "Message convention (conventional, plain, gitmoji)")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diff")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Parallel map-stage calls")
	cmd.Flags().IntVar(&flagTokenLimit, "token-limit", 0, "Override the model context limit")
	cmd.Flags().IntVar(&flagSafetyMargin, "safety-margin", 0, "Usable percentage of the context limit")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the message cache")
	cmd.Flags().BoolVar(&flagNoFilter, "no-filter", false, "Keep lock files and generated code in the diff")
	cmd.Flags().BoolVar(&flagNoMapReduce, "no-map-reduce", false, "Truncate oversized diffs instead of splitting")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Report pipeline progress on stderr")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagMapModel != "" {
		m["mapModel"] = flagMapModel
	}
	if flagConvention != "" {
		m["convention"] = flagConvention
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagNoMapReduce {
		m["mapReduce"] = "false"
	}
	if flagConcurrency > 0 {
		m["concurrency"] = fmt.Sprintf("%d", flagConcurrency)
	}
	if flagTokenLimit > 0 {
		m["tokenLimit"] = fmt.Sprintf("%d", flagTokenLimit)
	}
	if flagSafetyMargin > 0 {
		m["safetyMargin"] = fmt.Sprintf("%d", flagSafetyMargin)
	}
	return m
}

func buildDiffOpts() gitctx.DiffOptions {
	opts := gitctx.DiffOptions{ContextLines: flagContextLines}
	if flagExclude != "" {
		opts.Exclude = splitComma(flagExclude)
	}
	return opts
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func runGenerate(diff gitctx.DiffResult, cfg config.Config) {
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}
	if flagNoFilter {
		cfg.Filter.Enabled = false
	}

	changes := gitctx.SplitChanges(diff.Diff)
	if cfg.Privacy.RedactSecrets {
		paths := redact.DefaultPathPatterns()
		for i, c := range changes {
			changes[i].Section = redact.Content(c.Section, c.Path, paths)
		}
	}

	c, err := cache.New(cfg.Cache.Enabled && !flagNoCache, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
	key := cache.BuildKey(cfg.Provider, cfg.Model, cfg.Convention, gitctx.Assemble(changes))
	if msg, ok := c.Get(key); ok {
		report := buildReport(diff, cfg, pipeline.Result{Message: msg})
		report.Stats.CacheHit = true
		writeReport(report, cfg)
		return
	}

	gen, err := providers.New(cfg.Provider, cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if providers.IsAuthError(err) {
			exitCode = ExitAuthError
		} else {
			exitCode = ExitUsageError
		}
		return
	}

	var estOpts []tokens.Option
	if cfg.Pipeline.TokenLimit > 0 {
		estOpts = append(estOpts, tokens.WithCustomLimit(cfg.Pipeline.TokenLimit))
	}
	if cfg.Pipeline.SafetyMarginPercent > 0 {
		estOpts = append(estOpts, tokens.WithSafetyMargin(cfg.Pipeline.SafetyMarginPercent))
	}
	est := tokens.NewEstimator(cfg.Model, estOpts...)

	var sink feedback.Sink = feedback.Nop{}
	if flagVerbose {
		sink = feedback.NewConsole(os.Stderr)
	}

	handler := pipeline.NewHandler(gen, est, sink, pipeline.Options{
		Enabled:       cfg.Pipeline.Enabled,
		FilterEnabled: cfg.Filter.Enabled,
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		Convention:    cfg.Convention,
		Recent:        gitctx.RecentSubjects(5),
		Process: pipeline.ProcessConfig{
			Concurrency:       cfg.Pipeline.Concurrency,
			MaxRetries:        cfg.Pipeline.MaxRetries,
			InitialRetryDelay: time.Duration(cfg.Pipeline.RetryDelayMs) * time.Millisecond,
			MapModel:          cfg.Pipeline.MapModel,
		},
	})

	res, err := handler.Handle(context.Background(), changes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch {
		case errors.Is(err, pipeline.ErrNoChanges):
			exitCode = ExitUsageError
		case providers.IsAuthError(err):
			exitCode = ExitAuthError
		default:
			exitCode = ExitRuntimeError
		}
		return
	}

	if err := c.Put(key, res.Message, cfg.Model); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: caching message failed: %v\n", err)
	}

	writeReport(buildReport(diff, cfg, res), cfg)
}

func buildReport(diff gitctx.DiffResult, cfg config.Config, res pipeline.Result) *output.Report {
	return &output.Report{
		Message:  res.Message,
		Provider: cfg.Provider,
		Model:    cfg.Model,
		MapModel: res.MapModel,
		Mode:     diff.Mode,
		Ref:      diff.Ref,
		Files:    diff.Files,
		Repo: output.RepoInfo{
			Root:   diff.Repo.Root,
			Head:   diff.Repo.Head,
			Branch: diff.Repo.Branch,
		},
		Stats: output.Stats{
			Chunks:        res.Chunks,
			FailedChunks:  res.FailedChunks,
			FilesFiltered: res.FilterStats.FilesRemoved,
			BytesFiltered: res.FilterStats.BytesRemoved,
			Truncated:     res.Truncated,
			ElapsedMs:     res.Elapsed.Milliseconds(),
		},
	}
}

func writeReport(report *output.Report, cfg config.Config) {
	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
	}
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a commit message",
	Long:  "Generate a commit message from git changes. Use subcommands to choose which changes to describe.",
}

var generateStagedCmd = &cobra.Command{
	Use:   "staged",
	Short: "Describe staged changes (index vs HEAD)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		diff, err := gitctx.Staged(buildDiffOpts())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		runGenerate(diff, cfg)
		return nil
	},
}

var generateUnstagedCmd = &cobra.Command{
	Use:   "unstaged",
	Short: "Describe unstaged changes (working tree vs index)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		diff, err := gitctx.Unstaged(buildDiffOpts())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		runGenerate(diff, cfg)
		return nil
	},
}

var generateCommitCmd = &cobra.Command{
	Use:   "commit <sha>",
	Short: "Rewrite the message for an existing commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		diff, err := gitctx.Commit(args[0], buildDiffOpts())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		runGenerate(diff, cfg)
		return nil
	},
}

func init() {
	addGenerateFlags(generateStagedCmd)
	addGenerateFlags(generateUnstagedCmd)
	addGenerateFlags(generateCommitCmd)
	generateCmd.AddCommand(generateStagedCmd)
	generateCmd.AddCommand(generateUnstagedCmd)
	generateCmd.AddCommand(generateCommitCmd)
}
