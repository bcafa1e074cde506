package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elevatr/internal/log"
	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/camera/webcam"
	"github.com/teslashibe/go-elevatr/pkg/pipeline"
	"github.com/teslashibe/go-elevatr/pkg/web"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		headless  bool
		dashboard bool
		noSync    bool
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one identification session",
		Long: `Open the camera, match faces against the local gallery and stop after the
first recognized user has been displayed, announced and logged. The session
also ends on the quit key, SIGINT/SIGTERM or a dashboard stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.Camera.Headless = headless
			}
			if cmd.Flags().Changed("dashboard") {
				cfg.Web.Enabled = dashboard
			}
			if noSync {
				cfg.Gallery.SyncDuringSession = false
			}

			logger := log.Component("kiosk")

			if err := os.MkdirAll(filepath.Dir(cfg.Paths.LockPath), 0o755); err != nil {
				return fmt.Errorf("create lock directory: %w", err)
			}
			lock := flock.New(cfg.Paths.LockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another kiosk session is already running on this device")
			}
			defer lock.Unlock()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var cl closers
			defer func() { cl.close(logger) }()

			if err := os.MkdirAll(cfg.Paths.GalleryDir, 0o755); err != nil {
				return fmt.Errorf("create gallery directory: %w", err)
			}

			dir, err := buildDirectory(runCtx, cfg, log.Component("directory"))
			if err != nil {
				return err
			}
			predictor, err := buildPredictor(cfg)
			if err != nil {
				return err
			}
			index, err := buildMatcher(cfg, &cl, log.Component("matcher"))
			if err != nil {
				return err
			}
			speaker, err := buildSpeaker(cfg, log.Component("speech"))
			if err != nil {
				return err
			}
			recorders, err := buildRecorders(cfg, dir, &cl)
			if err != nil {
				return err
			}

			var background []pipeline.Background
			if cfg.Gallery.SyncDuringSession {
				worker, err := buildGalleryWorker(runCtx, cfg, log.Component("gallery"))
				switch {
				case errors.Is(err, errNoBucket):
					logger.Info("gallery sync disabled", "reason", err)
				case err != nil:
					return err
				default:
					background = append(background, worker)
				}
			}

			device, err := webcam.Open(cfg.Camera, log.Component("camera"))
			if err != nil {
				return err
			}
			var display camera.Display = device
			if cfg.Camera.Headless {
				display = camera.NewHeadless()
			}

			pcfg := pipeline.DefaultConfig()
			pcfg.Source = device
			pcfg.Display = display
			pcfg.Matcher = index
			pcfg.Directory = dir
			pcfg.Predictor = predictor
			pcfg.Speaker = speaker
			pcfg.Recorders = recorders
			pcfg.Background = background
			pcfg.GalleryDir = cfg.Paths.GalleryDir
			pcfg.Threshold = cfg.Pipeline.Threshold
			pcfg.Cooldown = cfg.Pipeline.Cooldown()
			pcfg.DisplayDuration = cfg.Pipeline.DisplayDuration()
			pcfg.PollInterval = cfg.Pipeline.PollInterval()
			pcfg.AnnounceTimeout = cfg.Pipeline.AnnounceTimeout()
			pcfg.PersistTimeout = cfg.Pipeline.PersistTimeout()
			pcfg.ShutdownGrace = cfg.Pipeline.ShutdownGrace()
			pcfg.CaptureRetry = pipeline.RetryPolicy{
				Delay:          cfg.Pipeline.ReadRetry(),
				MaxConsecutive: cfg.Pipeline.MaxReadFailures,
			}
			pcfg.MatchRetry = pipeline.RetryPolicy{MaxConsecutive: cfg.Pipeline.MaxMatchErrors}
			pcfg.Logger = log.Component("pipeline")

			var dash *web.Server
			if cfg.Web.Enabled {
				dash = web.NewServer(web.Config{
					Addr:           cfg.Web.Addr,
					FrameStride:    cfg.Web.FrameStride,
					StatusInterval: cfg.Web.StatusInterval(),
					StaticDir:      cfg.Web.StaticDir,
					Logger:         log.Component("web"),
				})
				pcfg.Observer = dash
				pcfg.Background = append(pcfg.Background, dash)
			}

			runner, err := pipeline.NewRunner(pcfg)
			if err != nil {
				device.Close()
				return err
			}
			if dash != nil {
				dash.Bind(runner)
			}

			res, err := runner.Run(runCtx)
			if err != nil {
				return err
			}
			return printResult(cmd, res, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Run without a camera window")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "Serve the status dashboard")
	cmd.Flags().BoolVar(&noSync, "no-gallery-sync", false, "Do not sync the gallery bucket during the session")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the session result as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, res *pipeline.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "session %s ended: %s\n", res.SessionID, res.StopReason)
	if !res.Recognized {
		fmt.Fprintln(out, "no user recognized")
		return nil
	}
	r := res.Recognition
	fmt.Fprintf(out, "recognized %s (%s), priority %v, floor %d -> %d\n",
		r.UserName, r.UserID, r.PredictedPriority, r.Reservation.EntryFloor, r.Reservation.DestinationFloor)
	if res.Persisted {
		fmt.Fprintf(out, "logged at %s\n", res.LogKey)
	} else {
		fmt.Fprintln(out, "WARNING: recognition was not persisted")
	}
	return nil
}
