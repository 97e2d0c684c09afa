// Package cli implements the ronin command-line surface named in spec.md
// §6: the operator-facing counterpart to the HTTP dashboard, for running
// the pipeline's steps by hand or from a shell script instead of the cron
// schedule.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ronin/internal/archetype"
	"ronin/internal/batch"
	"ronin/internal/centroid"
	"ronin/internal/embedding"
	"ronin/internal/errkind"
	"ronin/internal/external"
	"ronin/internal/outcome"
	"ronin/internal/rewrite"
	"ronin/internal/scheduler"
	"ronin/internal/shared/config"
	"ronin/internal/shared/storage/object"
	"ronin/internal/shared/storage/object/local"
	"ronin/internal/shared/storage/object/s3"
	"ronin/internal/store"
	"ronin/internal/versionstore"
)

const app = "ronin"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "ronin drives the self-improving job-application pipeline from the command line",
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is ronin.yaml in current directory, env vars otherwise)")
	rootCmd.PersistentFlags().String("db-dsn", "", "store DSN (defaults to DATABASE_URL, then :memory:)")
	viper.BindPFlag("db-dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("reading config file: %v", err)
		}
	} else {
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				log.Fatalf("reading config file: %v", err)
			}
		}
	}
}

// deps bundles the collaborators every subcommand needs. It is built fresh
// per invocation rather than held open across commands — the CLI is a
// one-shot process, not a server.
type deps struct {
	cfg        config.Config
	store      store.Store
	embedder   embedding.Model
	classifier *archetype.Classifier
	objects    object.ObjectStore
	versions   *versionstore.VersionStore
	batch      *batch.Coordinator
	centroid   *centroid.Engine
	rewrite    *rewrite.Trigger
	outcome    *outcome.Processor
	sched      *scheduler.Scheduler
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg := config.Load()
	if dsn := viper.GetString("db-dsn"); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = ":memory:"
	}

	repo, err := store.Open(dsn, cfg.ModelVersion)
	if err != nil {
		return nil, errkind.New(errkind.Internal, "cli.buildDeps: open store", err)
	}

	embedder := embedding.NewHashFallback(embedding.DefaultDim)
	classifier, err := archetype.New(ctx, embedder)
	if err != nil {
		repo.Close()
		return nil, errkind.New(errkind.Internal, "cli.buildDeps: build classifier", err)
	}

	objects, err := buildObjectStore(ctx, cfg)
	if err != nil {
		repo.Close()
		return nil, err
	}

	centroidEngine := centroid.NewEngine(repo, embedder)
	rewriteTrigger := rewrite.NewTrigger(repo)
	outcomeProcessor := outcome.NewProcessor(repo)

	sched := scheduler.New(repo, classifier, &external.FakeInbox{}, outcomeProcessor, centroidEngine, rewriteTrigger, objects)
	sched.Locker = scheduler.RedisOrInProcessLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	return &deps{
		cfg:        cfg,
		store:      repo,
		embedder:   embedder,
		classifier: classifier,
		objects:    objects,
		versions:   versionstore.New(objects),
		batch:      &batch.Coordinator{Store: repo},
		centroid:   centroidEngine,
		rewrite:    rewriteTrigger,
		outcome:    outcomeProcessor,
		sched:      sched,
	}, nil
}

func buildObjectStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	if cfg.ObjectStoreType == "s3" {
		store, err := s3.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, errkind.New(errkind.Internal, "cli.buildObjectStore: s3", err)
		}
		return store, nil
	}
	return local.New(cfg.LocalStoreDir), nil
}

func (d *deps) close() {
	d.store.Close()
}

// fail prints err and exits with errkind's sysexits-style code for its Kind.
func fail(err error) {
	fmt.Fprintln(os.Stderr, "ronin: "+err.Error())
	os.Exit(errkind.ExitCode(errkind.Of(err)))
}
