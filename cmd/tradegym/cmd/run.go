package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradegym/agent"
	"github.com/rustyeddy/tradegym/config"
	"github.com/rustyeddy/tradegym/dataset"
	"github.com/rustyeddy/tradegym/env"
	"github.com/rustyeddy/tradegym/internal/id"
	"github.com/rustyeddy/tradegym/internal/logger"
	"github.com/rustyeddy/tradegym/journal"
	"github.com/rustyeddy/tradegym/market"
	"github.com/rustyeddy/tradegym/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run episodes from a config file",
	Long: `Run episodes of the trading environment with the configured agent.

Every episode is recorded in the configured journal. With --envs greater
than one, independent environments run in parallel, each seeded with
seed+i.

Example:
  tradegym run -c gym.yaml --episodes 20 --envs 4 --render`,
	RunE: runRun,
}

var (
	runConfigPath string
	runEpisodes   int
	runSeed       int64
	runEnvs       int
	runRender     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().IntVar(&runEpisodes, "episodes", 0, "episodes per env (overrides run.episodes)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "base seed (overrides run.seed)")
	runCmd.Flags().IntVar(&runEnvs, "envs", 0, "parallel envs (overrides run.envs)")
	runCmd.Flags().BoolVar(&runRender, "render", false, "save every episode for the renderer")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("episodes") {
		cfg.Run.Episodes = runEpisodes
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = &runSeed
	}
	if flags.Changed("envs") {
		cfg.Run.Envs = runEnvs
	}
	if runRender {
		cfg.Render.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout, _ := cfg.Run.ParseTimeout()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, err = runGym(ctx, cfg, log, cmd.OutOrStdout())
	return err
}

// runGym plays the configured run and prints every env's result. It returns
// the run id.
func runGym(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) (string, error) {
	runID := id.NewRunID()
	seed := time.Now().UnixNano()
	if cfg.Run.Seed != nil {
		seed = *cfg.Run.Seed
	}

	j, err := openJournal(cfg, runID, seed)
	if err != nil {
		return "", err
	}
	defer j.Close()

	// a single file is loaded and preprocessed once and shared read-only
	var ds *market.Dataset
	if cfg.Dataset.Path != "" {
		ds, err = market.LoadCSV(cfg.Dataset.Path)
		if err != nil {
			return "", err
		}
		ds, err = cfg.Dataset.Preprocessor()(ds)
		if err != nil {
			return "", fmt.Errorf("preprocess %s: %w", cfg.Dataset.Path, err)
		}
	}

	renderDir := ""
	if cfg.Render.Enabled {
		renderDir = cfg.Render.Dir
	}

	factory := func(i int, seed int64) (*runner.Runner, error) {
		opts, err := cfg.Env.Options()
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			env.WithLogger(log),
			env.WithJournal(journal.Shared(j), runID),
		)
		if cfg.Run.Envs > 1 {
			name := cfg.Env.Name
			if name == "" {
				name = "env"
			}
			opts = append(opts, env.WithName(fmt.Sprintf("%s-%d", name, i)))
		}

		var e *env.Env
		if ds != nil {
			e, err = env.New(ds, opts...)
		} else {
			var rot *dataset.Rotator
			rot, err = dataset.NewRotator(cfg.Dataset.Pattern,
				dataset.WithPreprocess(cfg.Dataset.Preprocessor()),
				dataset.WithSwitchEvery(max(cfg.Dataset.SwitchEvery, 1)),
				dataset.WithSeed(seed),
			)
			if err != nil {
				return nil, err
			}
			e, err = env.NewWithProvider(rot, opts...)
		}
		if err != nil {
			return nil, err
		}

		p, err := agent.ByName(cfg.Agent.Type, agentOptions(cfg.Agent, e, seed))
		if err != nil {
			e.Close()
			return nil, err
		}

		return &runner.Runner{
			Name:   e.Name(),
			Env:    e,
			Policy: p,
			Options: runner.Options{
				Episodes:  cfg.Run.Episodes,
				Seed:      &seed,
				RenderDir: renderDir,
				MaxSteps:  cfg.Run.MaxSteps,
			},
		}, nil
	}

	log.Info("run started",
		zap.String("run_id", runID),
		zap.Int("envs", cfg.Run.Envs),
		zap.Int("episodes", cfg.Run.Episodes),
		zap.Int64("seed", seed),
	)
	results, err := runner.Parallel(ctx, cfg.Run.Envs, seed, factory)
	if err != nil {
		return runID, err
	}

	for _, r := range results {
		runner.PrintResult(out, r)
	}
	fmt.Fprintf(out, "Run ID: %s\n", runID)
	switch cfg.Journal.Type {
	case "csv":
		fmt.Fprintf(out, "Results saved to:\n  - %s\n  - %s\n", cfg.Journal.TradesFile, cfg.Journal.EpisodesFile)
	case "sqlite":
		fmt.Fprintf(out, "Results saved to: %s\n", cfg.Journal.DBPath)
	}
	return runID, nil
}

func openJournal(cfg *config.Config, runID string, seed int64) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EpisodesFile)
		if err != nil {
			return nil, fmt.Errorf("create journal: %w", err)
		}
		return j, nil

	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("create journal: %w", err)
		}
		raw, _ := yaml.Marshal(cfg)
		data := cfg.Dataset.Path
		if data == "" {
			data = cfg.Dataset.Pattern
		}
		err = j.RecordRun(journal.Run{
			RunID:   runID,
			Created: time.Now().UTC(),
			Env:     cfg.Env.Name,
			Dataset: data,
			Agent:   cfg.Agent.Type,
			Seed:    seed,
			Config:  string(raw),
		})
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("record run: %w", err)
		}
		return j, nil
	}
	return journal.Discard{}, nil
}

func agentOptions(a config.AgentConfig, e *env.Env, seed int64) agent.Options {
	return agent.Options{
		Actions:     e.ActionCount(),
		Seed:        seed,
		Action:      a.Action,
		FastPeriod:  a.FastPeriod,
		SlowPeriod:  a.SlowPeriod,
		LongAction:  a.LongAction,
		ShortAction: a.ShortAction,
		Model:       a.Model,
		Library:     a.Library,
		ObsShape:    e.ObservationShape(),
		InputName:   a.InputName,
		OutputName:  a.OutputName,
	}
}
