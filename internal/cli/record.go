package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/babelcloud/deskrec/internal/auth"
	"github.com/babelcloud/deskrec/internal/config"
	"github.com/babelcloud/deskrec/internal/platform"
	"github.com/babelcloud/deskrec/internal/preview"
	"github.com/babelcloud/deskrec/internal/recorder/grabber"
	"github.com/babelcloud/deskrec/internal/recorder/session"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
	"github.com/babelcloud/deskrec/internal/util"
)

// NewRecordCommand builds the "record" subcommand: the only command
// this CLI has beyond help and version, since the whole tool exists to
// run one recording session.
func NewRecordCommand() *cobra.Command {
	var (
		fps           int
		resolution    string
		audioEnabled  bool
		autoRecordSec int
		output        string
		noAuth        bool
		quality       int
		ringCapacity  int
		frameBuffers  int
		writeBufferMB int
		mirrorWebM    string
		previewAddr   string
		verbose       bool
		logFormat     string
		showStats     bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start a recording session",
		Example: `  deskrec record --output session.avi
  deskrec record --fps 60 --res 1080p --audio --output demo.avi
  deskrec record --auto-record 30 --output clip.avi --no-auth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logFormat != "" {
				os.Setenv("DESKREC_LOG_FORMAT", logFormat)
			}
			util.InitLogger(verbose)

			if cmd.Flags().Changed("fps") {
				config.Set("fps", fps)
			}
			if cmd.Flags().Changed("res") {
				config.Set("resolution", resolution)
			}
			if cmd.Flags().Changed("audio") {
				config.Set("audio", audioEnabled)
			}
			if cmd.Flags().Changed("auto-record") {
				config.Set("auto_record_seconds", autoRecordSec)
			}
			if cmd.Flags().Changed("output") {
				config.Set("output", output)
			}
			if cmd.Flags().Changed("no-auth") {
				config.Set("no_auth", noAuth)
			}
			if cmd.Flags().Changed("quality") {
				config.Set("quality", quality)
			}
			if cmd.Flags().Changed("ring-capacity") {
				config.Set("ring_capacity", ringCapacity)
			}
			if cmd.Flags().Changed("frame-buffers") {
				config.Set("frame_buffers", frameBuffers)
			}
			if cmd.Flags().Changed("write-buffer-mb") {
				config.Set("write_buffer_mb", writeBufferMB)
			}
			if cmd.Flags().Changed("mirror-webm") {
				config.Set("mirror_webm", mirrorWebM)
			}
			if cmd.Flags().Changed("preview-addr") {
				config.Set("preview_addr", previewAddr)
			}
			if cmd.Flags().Changed("stats") {
				config.Set("stats", showStats)
			}

			return runRecord()
		},
	}

	cmd.Flags().IntVar(&fps, "fps", config.DefaultFPS, "Capture frame rate")
	cmd.Flags().StringVar(&resolution, "res", config.DefaultResolution, "Output resolution (720p, 1080p, 1440p)")
	cmd.Flags().BoolVar(&audioEnabled, "audio", false, "Capture system audio loopback alongside video")
	cmd.Flags().IntVar(&autoRecordSec, "auto-record", 0, "Stop automatically after N seconds (0 disables)")
	cmd.Flags().StringVar(&output, "output", config.DefaultOutputPath, "Output AVI file path")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "Skip the entitlement check")
	cmd.Flags().IntVar(&quality, "quality", config.DefaultJPEGQuality, "JPEG quality (1-100)")
	cmd.Flags().IntVar(&ringCapacity, "ring-capacity", config.DefaultRingCapacity, "SPSC ring capacity, must be a power of two")
	cmd.Flags().IntVar(&frameBuffers, "frame-buffers", config.DefaultFrameBuffers, "Frame pool size, must be a power of two")
	cmd.Flags().IntVar(&writeBufferMB, "write-buffer-mb", config.DefaultWriteBufferMB, "Buffered writer size for the AVI output, in MiB")
	cmd.Flags().StringVar(&mirrorWebM, "mirror-webm", "", "Also write a WebM diagnostics mirror to this path")
	cmd.Flags().StringVar(&previewAddr, "preview-addr", "", "Start a JPEG-over-WebSocket preview server on this address (e.g. :8089); recorded frames are not published to it")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Force log output format: pretty or structured")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print a counters snapshot to stderr on exit")

	return cmd
}

func runRecord() error {
	slogLog := util.GetLogger()
	sessionID := uuid.NewString()

	var checker auth.Checker
	if config.NoAuth() {
		checker = auth.NoopChecker{}
	} else {
		checker = auth.StaticTokenChecker{Expected: os.Getenv("DESKREC_EXPECTED_TOKEN"), Token: os.Getenv("DESKREC_AUTH_TOKEN")}
	}
	if err := checker.Check(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("deskrec: %v", err))
		os.Exit(1)
	}

	res, err := config.ResolveResolution(config.ResolutionToken())
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("deskrec: %v", err))
		os.Exit(1)
	}

	cfg := session.Config{
		Width:         res.Width,
		Height:        res.Height,
		FPS:           config.FPS(),
		AudioEnabled:  config.AudioEnabled(),
		OutputPath:    config.OutputPath(),
		JPEGQuality:   config.JPEGQuality(),
		RingCapacity:  config.RingCapacity(),
		FrameBuffers:  config.FrameBuffers(),
		WriteBufferMB: config.WriteBufferMB(),
		MirrorWebM:    config.MirrorWebMPath(),
	}

	st := stats.New()
	display := platform.NewSolidDisplay()

	var loopback grabber.LoopbackDevice
	if cfg.AudioEnabled {
		loopback = platform.NewSilentLoopback()
	}

	sess, err := session.New(cfg, display, loopback, st, slogLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("deskrec: failed to initialize recording session: %v", err))
		os.Exit(1)
	}

	var previewSrv *preview.Server
	if addr := config.PreviewAddr(); addr != "" {
		previewSrv = preview.New(addr, sessionID)
		if err := previewSrv.Start(); err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("deskrec: failed to start preview server: %v", err))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := sess.Start(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, color.RedString("deskrec: failed to start recording session: %v", err))
		os.Exit(1)
	}

	color.New(color.FgGreen).Printf("recording to %s", cfg.OutputPath)
	fmt.Println()
	color.New(color.Faint).Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var autoTimer <-chan time.Time
	if n := config.AutoRecordSeconds(); n > 0 {
		autoTimer = time.After(time.Duration(n) * time.Second)
	}

	select {
	case <-sigCh:
	case <-autoTimer:
		color.New(color.Faint).Println("auto-record duration elapsed, stopping")
	}

	cancel()
	sess.Stop()

	if previewSrv != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := previewSrv.Stop(stopCtx); err != nil {
			slogLog.Warn("preview server shutdown error", "error", err)
		}
	}

	if config.StatsEnabled() {
		snap := sess.Stats()
		fmt.Fprintf(os.Stderr, "video=%d audio=%d capture_errs=%d encode_errs=%d video_drops=%d audio_drops=%d throttles=%d restores=%d\n",
			snap.VideoChunksWritten, snap.AudioChunksWritten, snap.CaptureErrors, snap.EncodeErrors,
			snap.VideoDrops, snap.AudioDrops, snap.ThrottleEvents, snap.RestoreEvents)
	}

	return nil
}
