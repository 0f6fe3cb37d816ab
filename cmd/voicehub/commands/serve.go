package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	router "github.com/dkeye/voicehub/internal/adapters/http"
	"github.com/dkeye/voicehub/internal/adapters/rtc"
	wssignal "github.com/dkeye/voicehub/internal/adapters/signal"
	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/app/orch"
	"github.com/dkeye/voicehub/internal/config"
	"github.com/dkeye/voicehub/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the signaling server",
	RunE:  runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	_ = v.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	serveCmd.Flags().String("static", "./web", "directory served under /static")
	_ = v.BindPFlag("static_path", serveCmd.Flags().Lookup("static"))
	serveCmd.Flags().String("backpressure", "drop", "what to do with receivers that cannot keep up: drop or kick")
	_ = v.BindPFlag("backpressure", serveCmd.Flags().Lookup("backpressure"))
}

func setupLogging(level, mode string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if mode != "release" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel, cfg.Mode)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	handler, err := buildHandler(ctx, cfg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("voicehub server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

// buildHandler wires the relay. Cancelling ctx closes every live WebSocket.
func buildHandler(ctx context.Context, cfg *config.Config) (http.Handler, error) {
	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		return nil, err
	}
	webrtcCfg, err := rtc.WebRTCConfig(cfg.ICEServers)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	reg := app.NewRegistry()
	rooms := app.NewDirectory(reg)
	relay := app.NewRouter(reg, rooms, policy, m)
	o := orch.New(reg, rooms, relay, m)

	ctl := wssignal.NewSignalWSController(o,
		wssignal.NewRoomRateLimiter(cfg.CreateRoomLimit, cfg.CreateRoomInterval),
		wssignal.Options{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			PongWait:   cfg.PongWait,
			WriteWait:  cfg.WriteWait,
			SendQueue:  cfg.SendQueue,
		})

	return router.SetupRouter(ctx, cfg, router.Deps{
		Orch:    o,
		Signal:  ctl,
		Metrics: m,
		WebRTC:  webrtcCfg,
	}), nil
}
