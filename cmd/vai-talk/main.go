// vai-talk is a console push-to-talk client for live voice conversation
// with a Gemini model: space opens and closes your turn, the reply plays
// through the speaker, q quits.
//
// Credentials come from the environment (a .env file is honored):
//
//	GOOGLE_API_KEY or GEMINI_API_KEY            default mode
//	GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION --vertex mode
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vango-go/vai-talk/internal/dotenv"
	"github.com/vango-go/vai-talk/pkg/audio"
	"github.com/vango-go/vai-talk/pkg/talk"
)

const (
	defaultModel    = "gemini-2.0-flash-live-001"
	defaultLocation = "us-central1"
)

type options struct {
	model      string
	voice      string
	system     string
	configPath string

	vertex       bool
	debug        bool
	noSpeaker    bool
	queueSeconds int
}

// configError marks failures the user fixes by changing flags or
// environment, not by retrying.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func configErrorf(format string, args ...any) error {
	return &configError{err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vai-talk:", err)
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opt := &options{}
	cmd := &cobra.Command{
		Use:   "vai-talk",
		Short: "Push-to-talk voice conversation in the terminal",
		Long: `vai-talk streams your microphone to a live Gemini model and plays the
spoken reply. Press space to start talking, space again to hand over,
and q (or Ctrl-C) to quit.

Requires ffmpeg (mic capture) and ffplay (speaker output) in PATH.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(opt.configPath)
			if err != nil {
				return &configError{err: err}
			}
			opt.merge(st, cmd.Flags().Changed)
			return run(cmd.Context(), opt)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opt.model, "model", "", "live model name (default "+defaultModel+")")
	fs.StringVar(&opt.voice, "voice", "", "prebuilt voice name for the reply audio")
	fs.StringVar(&opt.system, "system", "", "system prompt for the conversation")
	fs.StringVar(&opt.configPath, "config", "", "YAML settings file (default: user config dir)")
	fs.BoolVar(&opt.vertex, "vertex", false, "connect through Vertex AI instead of the Gemini API")
	fs.BoolVar(&opt.debug, "debug", false, "verbose logging on stderr")
	fs.BoolVar(&opt.noSpeaker, "no-speaker", false, "discard reply audio instead of playing it")
	fs.IntVar(&opt.queueSeconds, "queue-seconds", 0, "playback buffer length in seconds (default 30)")
	return cmd
}

// connectConfig resolves credentials for the selected mode. The two
// modes also tag outbound audio differently: the Gemini API wants an
// explicit sample rate, Vertex relies on the negotiated format.
func connectConfig(opt *options) (talk.ConnectConfig, error) {
	cfg := talk.ConnectConfig{
		Model:        opt.model,
		Voice:        opt.voice,
		SystemPrompt: opt.system,
		Vertex:       opt.vertex,
	}
	if opt.vertex {
		cfg.Project = getenvFirst("GOOGLE_CLOUD_PROJECT")
		if cfg.Project == "" {
			return cfg, configErrorf("--vertex requires GOOGLE_CLOUD_PROJECT in the environment")
		}
		cfg.Location = getenvFirst("GOOGLE_CLOUD_LOCATION")
		if cfg.Location == "" {
			cfg.Location = defaultLocation
		}
		cfg.MediaType = audio.MediaTypePCM
		return cfg, nil
	}
	cfg.APIKey = getenvFirst("GOOGLE_API_KEY", "GEMINI_API_KEY")
	if cfg.APIKey == "" {
		return cfg, configErrorf("GOOGLE_API_KEY or GEMINI_API_KEY is required (or use --vertex)")
	}
	cfg.MediaType = audio.MediaTypePCM24K
	return cfg, nil
}

func run(ctx context.Context, opt *options) error {
	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := connectConfig(opt)
	if err != nil {
		return err
	}
	if err := audio.CheckCaptureBinary(); err != nil {
		return &configError{err: err}
	}

	sess, err := talk.Connect(ctx, cfg)
	if err != nil {
		return err
	}

	egress := talk.NewEgress(sess, logger)
	capture, err := audio.NewCapture(audio.CaptureConfig{
		Emit:   egress.Audio,
		Logger: logger,
	})
	if err != nil {
		_ = sess.Close()
		return err
	}

	playerCfg := audio.PlayerConfig{Logger: logger}
	if opt.noSpeaker {
		playerCfg.Sink = audio.DiscardSink{}
	}
	if opt.queueSeconds > 0 {
		playerCfg.QueueCapacity = opt.queueSeconds * int(time.Second/audio.ChunkDuration)
	}
	player, err := audio.NewPlayer(playerCfg)
	if err != nil {
		_ = sess.Close()
		return err
	}

	fmt.Println("vai-talk — space to talk, space again to send, q to quit")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			logger.Warn("raw mode unavailable, keyboard may need Enter", "err", err)
		} else {
			defer term.Restore(fd, oldState)
		}
	}
	keys := talk.ReadKeys(ctx, os.Stdin)

	coord, err := talk.NewCoordinator(talk.CoordinatorConfig{
		Session:     sess,
		Egress:      egress,
		Capture:     capture,
		CaptureErrs: capture.Errs(),
		Player:      player,
		Keys:        keys,
		Status:      talk.NewStatus(os.Stdout),
		Logger:      logger,
	})
	if err != nil {
		_ = player.Close()
		_ = sess.Close()
		return err
	}

	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
