// Package blockreaction wires the engine together behind a single command:
// configuration loading, logging, the chain client, the chosen block feed,
// the metrics endpoint, signal handling and the final report.
package blockreaction

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danielNg25/block-reaction/blockchain"
	"github.com/danielNg25/block-reaction/core/configs"
	"github.com/danielNg25/block-reaction/core/configs/parsers"
	"github.com/danielNg25/block-reaction/core/results"
	"github.com/danielNg25/block-reaction/engine"
)

var (
	configPath string
	feedMode   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "blockreaction",
	Short: "Reacts to new blocks with value transfers and measures confirmation latency",
	RunE:  run,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the run configuration file (required)")
	rootCmd.Flags().StringVar(&feedMode, "feed", "", "override the configured feed mode (subscribe|poll)")
	rootCmd.Flags().StringVar(&logLevel, "level", "info", "log level (debug|info|warn|error)")
	rootCmd.MarkFlagRequired("config")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func prepareLogger() error {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to produce a logger: %s", err.Error())
	}

	zap.ReplaceGlobals(logger)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	if err := prepareLogger(); err != nil {
		return err
	}

	conf, err := parsers.ParseConfig(configPath)
	if err != nil {
		return err
	}

	if feedMode != "" {
		conf.FeedMode = configs.FeedMode(feedMode)
	}

	zap.L().Info("configuration loaded",
		zap.String("feedMode", string(conf.FeedMode)),
		zap.Uint64("budget", conf.Budget),
		zap.Uint64("blocksToSkip", conf.BlocksToSkip))

	client, err := blockchain.NewEthereumClient(cmd.Context(), conf)
	if err != nil {
		return err
	}
	defer client.Close()

	var feed engine.BlockFeed
	switch conf.FeedMode {
	case configs.FeedModePoll:
		feed = engine.NewPollingFeed(client, time.Duration(conf.PollIntervalMs)*time.Millisecond)
	default:
		feed = engine.NewSubscriptionFeed(client)
	}

	collector := results.NewCollector()

	var metrics *engine.Metrics
	if conf.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics = engine.NewMetrics(registry)
		serveMetrics(conf.MetricsAddr, registry)
	}

	eng := engine.New(conf, client, feed, collector, metrics)

	if err = eng.Start(); err != nil {
		return err
	}
	defer eng.Close()

	waitForRun(eng, conf)

	printReport(collector, eng.Status())

	return nil
}

// waitForRun blocks until every budgeted transfer is confirmed or the user
// interrupts. A first interrupt stops dispatching and drains pending
// confirmations for a bounded time; a second one forces shutdown.
func waitForRun(eng *engine.Engine, conf *configs.Config) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case <-eng.Done():
		return
	case sig := <-signals:
		zap.L().Warn("interrupted, draining pending confirmations",
			zap.String("signal", sig.String()),
			zap.Uint64("drainTimeoutS", conf.DrainTimeoutS))
		eng.Stop()
	}

	drain := time.NewTimer(time.Duration(conf.DrainTimeoutS) * time.Second)
	defer drain.Stop()

	select {
	case <-eng.Done():
	case <-drain.C:
		zap.L().Warn("drain timeout elapsed, shutting down")
	case <-signals:
		zap.L().Warn("second interrupt, shutting down")
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		zap.L().Info("serving metrics",
			zap.String("addr", addr))

		if err := http.ListenAndServe(addr, mux); err != nil {
			zap.L().Warn("metrics server stopped",
				zap.Error(err))
		}
	}()
}

func printReport(collector *results.Collector, status engine.Status) {
	summary := collector.Summarize()

	fmt.Println("==============================")
	fmt.Println("        RUN  REPORT")
	fmt.Println("==============================")
	fmt.Printf("blocks seen:   %d\n", status.BlocksSeen)
	fmt.Printf("sent:          %d / %d\n", status.Sent, status.Budget)
	fmt.Printf("confirmed:     %d\n", status.Confirmed)

	for _, conf := range collector.Snapshot() {
		fmt.Printf("  %s  block %d -> %d (%d blocks)  %.0f ms  gas %d\n",
			conf.TransactionHash,
			conf.SentBlockNumber,
			conf.ConfirmedBlockNumber,
			conf.BlocksToConfirm,
			conf.ConfirmationTimeMs,
			conf.GasUsed)
	}

	if summary.Count == 0 {
		return
	}

	fmt.Printf("latency ms:    avg %.1f  median %.1f  min %.1f  max %.1f\n",
		summary.AverageMs, summary.MedianMs, summary.MinMs, summary.MaxMs)
	fmt.Printf("blocks:        avg %.2f  max %d\n",
		summary.AverageBlocks, summary.MaxBlocks)
	fmt.Printf("total gas:     %d\n", summary.TotalGasUsed)
}
