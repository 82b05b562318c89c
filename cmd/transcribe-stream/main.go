package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/transcribe-stream/internal/audio"
	"github.com/lexiqai/transcribe-stream/internal/config"
	"github.com/lexiqai/transcribe-stream/internal/observability"
	"github.com/lexiqai/transcribe-stream/internal/stt"
	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

type flags struct {
	file             string
	encoding         string
	inputRate        int
	output           string
	partials         bool
	realtime         bool
	stopAfterSilence bool
	channelRoles     string
	serve            bool

	endpoint      string
	transport     string
	language      string
	sampleRate    int
	chunkSize     int
	callAnalytics bool
	logLevel      string
}

var (
	opts   flags
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "transcribe-stream",
	Short: "Stream audio to a transcription endpoint and print the results",
	Long: `transcribe-stream sends an audio file (or stdin) over a streaming
transcription connection and prints transcripts as they arrive.

Configuration is read from the environment (and a .env file when present);
flags override it. TRANSCRIBE_ENDPOINT or --endpoint is required.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "audio file to stream, or - for stdin")
	f.StringVar(&opts.encoding, "encoding", "pcm", "input encoding: pcm (16-bit little-endian) or mulaw")
	f.IntVar(&opts.inputRate, "input-rate", 0, "input sample rate when it differs from --sample-rate")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	f.BoolVar(&opts.partials, "partials", false, "print partial results in text output")
	f.BoolVar(&opts.realtime, "realtime", false, "pace audio at playback speed")
	f.BoolVar(&opts.stopAfterSilence, "stop-after-silence", false, "end the stream once speech is followed by silence")
	f.StringVar(&opts.channelRoles, "channel-roles", "", "call analytics participant roles by channel, e.g. AGENT,CUSTOMER")
	f.BoolVar(&opts.serve, "serve", false, "serve /health, /ready and /metrics on PORT while streaming")

	f.StringVar(&opts.endpoint, "endpoint", "", "streaming endpoint (TRANSCRIBE_ENDPOINT)")
	f.StringVar(&opts.transport, "transport", "", "http2 or websocket (TRANSCRIBE_TRANSPORT)")
	f.StringVarP(&opts.language, "language", "l", "", "language code (TRANSCRIBE_LANGUAGE_CODE)")
	f.IntVar(&opts.sampleRate, "sample-rate", 0, "sample rate sent to the service (TRANSCRIBE_SAMPLE_RATE)")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "bytes of PCM per audio event (AUDIO_CHUNK_SIZE)")
	f.BoolVar(&opts.callAnalytics, "call-analytics", false, "use the call analytics endpoint (TRANSCRIBE_CALL_ANALYTICS)")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")

	_ = rootCmd.MarkFlagRequired("file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and starts logging
func setup(cmd *cobra.Command, _ []string) error {
	if opts.endpoint != "" {
		os.Setenv("TRANSCRIBE_ENDPOINT", opts.endpoint)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("transport") {
		cfg.Transport = opts.transport
	}
	if f.Changed("language") {
		cfg.LanguageCode = opts.language
	}
	if f.Changed("sample-rate") {
		cfg.MediaSampleRateHz = opts.sampleRate
	}
	if f.Changed("chunk-size") {
		cfg.AudioChunkSize = opts.chunkSize
	}
	if f.Changed("call-analytics") {
		cfg.CallAnalytics = opts.callAnalytics
	}
	if f.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := audio.ParseEncoding(opts.encoding); err != nil {
		return err
	}
	switch opts.output {
	case outputText, outputJSON:
	default:
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	observability.InitLogger(observability.LogOptions{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	logger = observability.GetLogger()
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openInput(opts.file)
	if err != nil {
		return err
	}
	defer src.Close()

	client := stt.NewClient(cfg, stt.WithLogger(logger))

	if opts.serve {
		srv := startOpsServer(":"+cfg.Port, cfg, client)
		defer shutdownOpsServer(srv)
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("transport", cfg.Transport).
		Str("language_code", cfg.LanguageCode).
		Int("sample_rate", cfg.MediaSampleRateHz).
		Bool("call_analytics", cfg.CallAnalytics).
		Msg("Opening transcription stream")

	sess, err := client.StartStream(ctx, streamRequest(cfg))
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.CallAnalytics && opts.channelRoles != "" {
		if err := sess.SendConfiguration(ctx, configurationEvent(opts.channelRoles)); err != nil {
			return fmt.Errorf("send configuration: %w", err)
		}
	}

	enc, _ := audio.ParseEncoding(opts.encoding)
	sender := &audioSender{
		encoding:   enc,
		inputRate:  opts.inputRate,
		sampleRate: cfg.MediaSampleRateHz,
		chunkSize:  cfg.AudioChunkSize,
		logger:     sess.Logger(),
	}
	if opts.realtime {
		sender.interval = audio.ChunkInterval(cfg.AudioChunkSize, cfg.MediaSampleRateHz)
	}
	if opts.stopAfterSilence {
		vad := audio.DefaultVADConfig(cfg.MediaSampleRateHz)
		vad.EnergyThreshold = cfg.VADEnergyThreshold
		vad.Hangover = cfg.VADHangoverDuration()
		sender.vad = audio.NewVADDetector(vad)
	}

	printer := newPrinter(os.Stdout, opts.output, opts.partials)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sender.run(gctx, sess, src)
	})
	g.Go(func() error {
		return stt.HandleEvents(gctx, sess.Events(gctx), printer)
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			logger.Warn().Msg("Interrupted")
			return nil
		}
		return err
	}

	logger.Info().
		Str("session_id", sess.ID()).
		Str("request_id", sess.Metadata.RequestID).
		Msg("Stream finished")
	return nil
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open audio input: %w", err)
	}
	return f, nil
}

func streamRequest(cfg *config.Config) transcribe.StreamRequest {
	return transcribe.StreamRequest{
		CallAnalytics:     cfg.CallAnalytics,
		LanguageCode:      cfg.LanguageCode,
		MediaSampleRateHz: cfg.MediaSampleRateHz,
		MediaEncoding:     cfg.MediaEncoding,
	}
}

func configurationEvent(roles string) transcribe.ConfigurationEvent {
	var ev transcribe.ConfigurationEvent
	for i, role := range strings.Split(roles, ",") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		ev.ChannelDefinitions = append(ev.ChannelDefinitions, transcribe.ChannelDefinition{
			ChannelID:       i,
			ParticipantRole: strings.ToUpper(role),
		})
	}
	return ev
}
