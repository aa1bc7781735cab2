// Command livevoice streams audio and text to a real-time dialogue service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/enesunal-m/livevoice"
)

// app holds what every subcommand needs once flags and config are resolved.
type app struct {
	v        *viper.Viper
	cfgPath  string
	settings *settings
	log      *livevoice.Logger
	streamer *livevoice.Streamer
	metrics  *http.Server
}

func newApp() *app { return &app{v: viper.New()} }

// newRootCmd builds the command tree around a. The caller releases a with
// shutdown once the command returns, whether or not it failed.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "livevoice",
		Short:         "Stream audio and text to a real-time dialogue service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgPath, "config", "", "config file (default ./livevoice.yaml)")
	f.String("endpoint", "", "service endpoint URL")
	f.String("model", "", "model to request during session setup")
	f.String("transport", "", "websocket or webrtc")
	f.StringSlice("modalities", nil, "response modalities, e.g. TEXT or AUDIO")
	f.Duration("drain-timeout", 0, "how long to wait for output after input ends")
	f.Duration("max-turn", 0, "cap on one turn-bounded exchange (0 = none)")
	f.Int("retries", 0, "connection attempts to retry with backoff")
	f.String("log-level", "", "debug, info, warn, error or off")
	f.String("log-format", "", "console or json")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	for key, flag := range map[string]string{
		"endpoint":          "endpoint",
		"model":             "model",
		"transport":         "transport",
		"modalities":        "modalities",
		"drain_timeout":     "drain-timeout",
		"max_turn_duration": "max-turn",
		"retries":           "retries",
		"log.level":         "log-level",
		"log.format":        "log-format",
		"metrics_addr":      "metrics-addr",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}

	root.AddCommand(newTranscribeCmd(a), newSpeakCmd(a), newConverseCmd(a))
	return root
}

func (a *app) init() error {
	s, err := loadSettings(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.settings = s
	a.log = livevoice.NewLoggerWithConfig(livevoice.LogConfig{
		Level:  s.Log.Level,
		Format: s.Log.Format,
		File:   s.Log.File,
	})

	var metrics *livevoice.Metrics
	if s.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = livevoice.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		a.metrics = &http.Server{Addr: s.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics_server", map[string]any{"err": err})
			}
		}()
	}

	cfg, err := s.clientConfig(a.log, metrics)
	if err != nil {
		return err
	}
	a.streamer, err = livevoice.NewStreamer(cfg)
	return err
}

func (a *app) shutdown() {
	if a.streamer != nil {
		_ = a.streamer.Disconnect()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	a.shutdown()
	if err != nil {
		if errors.Is(err, livevoice.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "cancelled")
			os.Exit(130)
		}
		os.Exit(1)
	}
}
