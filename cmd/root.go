package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/AlfredBerg/scrapecrawl/internal/config"
	"github.com/AlfredBerg/scrapecrawl/internal/crawl"
	"github.com/AlfredBerg/scrapecrawl/internal/fetch"
	"github.com/AlfredBerg/scrapecrawl/internal/outputHandlers/file"
	"github.com/AlfredBerg/scrapecrawl/internal/outputHandlers/sqlite"
	"github.com/AlfredBerg/scrapecrawl/internal/selector"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scrapecrawl.yaml)")
	config.BindFlags(rootCmd.Flags())
	cobra.CheckErr(viper.BindPFlags(rootCmd.Flags()))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".scrapecrawl" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".scrapecrawl")
	}

	viper.SetEnvPrefix("scrapecrawl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

var rootCmd = &cobra.Command{
	Use:   "scrapecrawl [url]",
	Short: "A selector driven crawler that extracts a tree of linked pages",
	Long: `scrapecrawl fetches the seed urls, extracts fields from them with the plan's
selector, follows the links found in the link field with the next selector of
the plan's queue, and writes the resulting tree as json or yaml.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return crawler(ctx, cfg, args, cmd.InOrStdin(), logger)
	},
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func crawler(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, logger *zap.Logger) error {
	plan, err := config.LoadPlan(afero.NewOsFs(), cfg.Plan)
	if err != nil {
		return err
	}

	var job crawl.Job
	if len(args) == 1 {
		job = crawl.NewJob(nil, plan.Selector, plan.CrawlQueue())
		job.Seed = args[0]
	} else {
		seeds, err := readTargets(cfg.Targets, stdin)
		if err != nil {
			return err
		}
		job = crawl.NewJob(seeds, plan.Selector, plan.CrawlQueue())
	}

	static := fetch.NewFetcher(fetch.NewHTTPTransport(cfg.UserAgent), fetch.WithLogger(logger.Named("fetch")))
	engineOpts := []selector.EngineOption{
		selector.WithAttempts(cfg.Attempts),
		selector.WithHeaders(cfg.Headers),
		selector.WithRequestTimeout(cfg.Timeout),
		selector.WithLogger(logger.Named("selector")),
	}
	if cfg.Dynamic {
		rt := fetch.NewRodTransport(cfg.Concurrency, cfg.Stable, logger.Named("rod"))
		defer rt.Close()
		engineOpts = append(engineOpts, selector.WithDynamic(
			fetch.NewFetcher(rt, fetch.WithLogger(logger.Named("fetch")))))
	}
	engine := selector.NewEngine(static, engineOpts...)

	c := crawl.New(engine,
		crawl.WithLimit(cfg.Limit),
		crawl.WithLinkField(plan.LinkField),
		crawl.WithScope(plan.Scope),
		crawl.WithDynamic(cfg.Dynamic),
		crawl.WithLogger(logger.Named("crawl")))

	logger.Info("starting crawl",
		zap.String("crawl_id", job.ID.String()),
		zap.Int("depths", job.Queue.Len()+1),
		zap.Bool("dynamic", cfg.Dynamic))

	root, err := c.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if cfg.Database != "" {
		outputHandler := sqlite.SqliteOutput{Database: cfg.Database, Logger: logger.Named("sqlite")}
		if err := outputHandler.Init(); err != nil {
			return err
		}
		if err := outputHandler.HandleTree(job.ID, root); err != nil {
			_ = outputHandler.Cleanup()
			return err
		}
		if err := outputHandler.Cleanup(); err != nil {
			return err
		}
	}

	if err := file.WriteFile(cfg.Output, cfg.Format, root); err != nil {
		return err
	}

	stats := c.Stats()
	logger.Info("all crawling done",
		zap.Int64("visited", stats.Visited),
		zap.Int64("failed_branches", stats.FailedBranches))
	return nil
}

func readTargets(path string, stdin io.Reader) ([]string, error) {
	if path == "" {
		return config.ReadTargets(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.ReadTargets(f)
}
