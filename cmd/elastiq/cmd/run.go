package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cernops/elastiq/internal/batch"
	_ "github.com/cernops/elastiq/internal/batch/fake"
	_ "github.com/cernops/elastiq/internal/batch/htcondor"
	"github.com/cernops/elastiq/internal/cloud"
	_ "github.com/cernops/elastiq/internal/cloud/ec2"
	"github.com/cernops/elastiq/internal/config"
	"github.com/cernops/elastiq/internal/scheduler"
)

var (
	configPath string
	logDir     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the autoscaling control loop",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the elastiq INI configuration file")
	runCmd.Flags().StringVar(&logDir, "logdir", "", "directory to write rotating log files to (default: stderr)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	if logDir != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "elastiq.log"),
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorf("cannot load configuration from %s: %v", configPath, err)
		os.Exit(2)
	}
	log.SetLevel(logrus.Level(cfg.Elastiq.LogLevel + int(logrus.InfoLevel)))

	plugin, err := batch.Lookup(cfg.Elastiq.BatchPlugin, cfg.PluginSection)
	if err != nil {
		log.Errorf("cannot initialize batch plugin %q: %v", cfg.Elastiq.BatchPlugin, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := cloud.Lookup(ctx, "ec2", map[string]string{
		"api_url":               cfg.EC2.APIURL,
		"aws_access_key_id":     cfg.EC2.AccessKeyID,
		"aws_secret_access_key": cfg.EC2.SecretAccessKey,
		"image_id":              cfg.EC2.ImageID,
		"key_name":              cfg.EC2.KeyName,
		"flavour":               cfg.EC2.Flavour,
	})
	if err != nil {
		log.Errorf("cannot initialize cloud driver: %v", err)
		os.Exit(2)
	}

	log.Infof("elastiq starting: plugin=%s min_vms=%d max_vms=%d",
		cfg.Elastiq.BatchPlugin, cfg.Quota.MinVMs, cfg.Quota.MaxVMs)

	s := scheduler.New(cfg, plugin, driver, log)
	s.Dispatch(ctx)

	log.Info("elastiq stopped")
	return nil
}
