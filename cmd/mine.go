package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/histocoin/artifact-miner/internal/config"
	"github.com/histocoin/artifact-miner/internal/extract"
	"github.com/histocoin/artifact-miner/internal/fetcher"
	"github.com/histocoin/artifact-miner/internal/gate"
	"github.com/histocoin/artifact-miner/internal/license"
	"github.com/histocoin/artifact-miner/internal/metrics"
	"github.com/histocoin/artifact-miner/internal/miner"
	"github.com/histocoin/artifact-miner/internal/pipeline"
	"github.com/histocoin/artifact-miner/internal/registry"
	"github.com/histocoin/artifact-miner/internal/resolver"
	"github.com/histocoin/artifact-miner/internal/status"
	"github.com/histocoin/artifact-miner/internal/submit"
	"github.com/histocoin/artifact-miner/internal/traverse"
)

type mineFlags struct {
	target string
	random bool
	remote bool
	once   bool
}

// newMineCmd creates the 'mine' subcommand, the long-running discovery
// loop.
func newMineCmd() *cobra.Command {
	var flags mineFlags
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Runs the artifact discovery loop",
		Long: `Resolves a set of sources, traverses each one for object pages,
and submits extracted artifacts to the master. Runs continuously until
interrupted unless --once is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMine(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.target, "target", "", "process a single URL, registering it as a source")
	cmd.Flags().BoolVar(&flags.random, "random-source", false, "sample one source from the registry each pass")
	cmd.Flags().BoolVar(&flags.remote, "remote-sources", false, "fetch the source list from the master each pass")
	cmd.Flags().BoolVar(&flags.once, "once", false, "run a single pass and exit")
	return cmd
}

func runMine(parent context.Context, flags mineFlags) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := buildDriver(cfg, flags, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	// The status server lives only as long as the driver, so a clean
	// single-pass exit also shuts it down.
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		defer cancel()
		return driver.Run(runCtx)
	})
	if cfg.Status.Enabled {
		statusSrv := status.NewServer(cfg.Status.Port, driver, logger.Named("status"))
		g.Go(func() error {
			return statusSrv.Start(runCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run miner: %w", err)
	}
	logger.Info("miner stopped")
	return nil
}

func buildDriver(cfg config.Config, flags mineFlags, logger *zap.Logger) (*pipeline.Driver, error) {
	store, err := registry.NewFileStore(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	reg := registry.New(store)

	client := submit.New(submit.Options{
		MasterBaseURL: cfg.Master.BaseURL,
		MasterToken:   cfg.Master.Token,
		NodeID:        cfg.Miner.NodeID,
		MirrorBaseURL: cfg.Mirror.BaseURL,
		MirrorToken:   cfg.Mirror.Token,
		Timeout:       cfg.FetchTimeout(),
	}, logger.Named("submit"))

	pages := fetcher.New(fetcher.Config{
		UserAgent:  cfg.Miner.UserAgent,
		Timeout:    cfg.FetchTimeout(),
		PerHostQPS: cfg.HTTP.PerHostQPS,
	}, logger.Named("fetcher"))

	extractor := extract.New(license.New(), logger.Named("extract"))
	engine := traverse.New(pages, extractor, logger.Named("traverse"))

	var classifier miner.Gate
	if cfg.Gate.Enabled {
		classifier = gate.New(gate.Config{
			Endpoint:    cfg.Gate.Endpoint,
			Model:       cfg.Gate.Model,
			Temperature: cfg.Gate.Temperature,
			Timeout:     cfg.GateTimeout(),
		}, logger.Named("gate"))
	}

	res := resolver.New(reg, client, logger.Named("resolver"))

	return pipeline.New(res, engine, classifier, reg, client, pipeline.Options{
		Resolution: resolver.Options{
			TargetURL:          flags.target,
			RandomFromRegistry: flags.random,
			RemoteList:         flags.remote,
			LocalFile:          cfg.Miner.SourcesFile,
		},
		PassInterval:     cfg.PassInterval(),
		ArtifactCooldown: cfg.ArtifactCooldown(),
		Once:             flags.once,
	}, logger.Named("pipeline")), nil
}
