package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pdfquiz"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "webserver",
		Short:        "Serve the PDF quiz in the browser",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, port, verbose)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to YAML config (optional)")
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides config and PORT)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debugging output")
	return cmd
}

func run(ctx context.Context, configPath, port string, verbose bool) error {
	cfg, err := pdfquiz.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	if port != "" {
		cfg.Server.Port = port
	}

	log, err := pdfquiz.NewLogger(cfg.Log.Mode, cfg.Log.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync()
	pdfquiz.SetLogger(log)
	pdfquiz.SetVerbose(cfg.Log.Verbose)

	if err := cfg.Validate(); err != nil {
		log.Errorw("refusing to start", "error", pdfquiz.Message(err))
		return err
	}

	maker, err := pdfquiz.NewQuestionMaker(cfg.MakerConfig())
	if err != nil {
		return err
	}
	gen := pdfquiz.NewQuizGenerator(pdfquiz.NewPDFExtractor(), maker, cfg.GeneratorOptions())

	key := []byte(cfg.Server.SessionSecret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		log.Warnw("no session secret configured, sessions will not survive a restart")
	}

	if strings.HasPrefix(strings.ToLower(cfg.Log.Mode), "prod") {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := newServer(serverOptions{
		Generator:  gen,
		SessionKey: key,
		SessionTTL: cfg.SessionTTL(),
		MaxUpload:  cfg.MaxUploadBytes(),
		TimeLimit:  cfg.Quiz.DefaultMinutes,
		Origins:    cfg.Server.Origins,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("starting server", "port", cfg.Server.Port, "model", cfg.LLM.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return srv.sessions.run(gctx, sweepInterval(cfg.SessionTTL()))
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// sweepInterval checks for idle sessions a few times per ttl
func sweepInterval(ttl time.Duration) time.Duration {
	every := ttl / 4
	if every < time.Minute {
		every = time.Minute
	}
	return every
}
