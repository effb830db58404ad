package main

import (
	"bytes"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimiro1/banner"
	"github.com/gordonklaus/portaudio"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"voiceloop/audio/config"
	"voiceloop/audio/logging"
	"voiceloop/audio/modules"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load(os.Getenv("VOICELOOP_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	banner.Init(os.Stdout, true, true, bytes.NewBufferString("{{ .Title \"VOICELOOP\" \"\" 0 }}\nVersion: "+version+"\n"))

	if err := portaudio.Initialize(); err != nil {
		logger.Fatalw("Failed to initialize PortAudio", "error", err)
	}
	cleanup := modules.NewCleanup(logger)
	cleanup.Add("portaudio", portaudio.Terminate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger, cleanup)
	cleanup.Run()
	if err != nil {
		logger.Fatalw("Session ended with a device failure", "error", err)
	}
	logger.Infow("Session finished")
}

func run(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger, cleanup *modules.Cleanup) error {
	openaiClient := modules.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)

	stt, err := newTranscriber(ctx, cfg, openaiClient, cleanup)
	if err != nil {
		return err
	}
	synth, err := newSynthesizer(ctx, cfg, openaiClient, cleanup)
	if err != nil {
		return err
	}

	device := modules.NewPortAudioDevice(cfg.Audio.SampleRate, cfg.Playback.FramesPerBuffer)
	var sinks modules.SinkOpener = device
	if cfg.Playback.Backend == "speaker" {
		sinks = &modules.SpeakerDevice{}
	}

	trigger := &modules.ManualTrigger{}
	monitor := modules.NewInterruptMonitor(device, cfg.VAD.SilenceThreshold, cfg.Audio.BlockSize, cfg.Interrupt.ProbeBlocks, logger)
	player := modules.NewPlaybackSession(sinks, synth, modules.AnyProber{trigger, monitor}, logger)
	if cfg.Playback.CuePath != "" {
		cue, err := modules.LoadCue(cfg.Playback.CuePath, synth.SampleRate())
		if err != nil {
			logger.Warnw("Interrupt cue unavailable", "path", cfg.Playback.CuePath, "error", err)
		} else {
			player.SetCue(cue)
		}
	}

	capture := modules.CaptureConfig{
		SampleRate:       cfg.Audio.SampleRate,
		BlockSize:        cfg.Audio.BlockSize,
		Threshold:        cfg.VAD.SilenceThreshold,
		CloseAfterBlocks: modules.CloseAfterBlocks(cfg.VAD.SilenceDuration, cfg.Audio.SampleRate, cfg.Audio.BlockSize),
	}
	logger.Infow("Starting session",
		"sample_rate", capture.SampleRate,
		"block_size", capture.BlockSize,
		"close_after_blocks", capture.CloseAfterBlocks,
		"stt", cfg.STT.Provider,
		"tts", cfg.TTS.Provider,
		"model", cfg.LLM.Model,
		"playback", cfg.Playback.Backend,
	)

	// Closed by the capture loop when the session ends.
	source, err := device.OpenInput(cfg.Audio.BlockSize)
	if err != nil {
		return modules.Wrap(modules.KindCaptureDevice, "open microphone", err)
	}
	controller := modules.NewController(modules.ControllerConfig{
		Capture:      capture,
		ExitPhrase:   cfg.Session.ExitPhrase,
		PollInterval: cfg.Session.PollInterval,
		Segmenter:    modules.SegmenterConfig{MinLength: cfg.Segmenter.MinLength},
		Keyboard:     cfg.Interrupt.Keyboard,
	}, modules.Dependencies{
		Source:      source,
		Transcriber: stt,
		Dialogue:    modules.NewChatEngine(openaiClient, cfg.LLM.Model, cfg.LLM.SystemPrompt),
		Player:      player,
		Trigger:     trigger,
	}, logger)
	return controller.Run(ctx)
}

func newTranscriber(ctx context.Context, cfg config.Config, client *openai.Client, cleanup *modules.Cleanup) (modules.Transcriber, error) {
	if cfg.STT.Provider == "google" {
		g, err := modules.NewGoogleTranscriber(ctx, cfg.Google.CredentialsFile, cfg.STT.Language)
		if err != nil {
			return nil, err
		}
		cleanup.Add("speech client", g.Close)
		return g, nil
	}
	return modules.NewOpenAITranscriber(client, cfg.STT.Model, cfg.STT.Language), nil
}

func newSynthesizer(ctx context.Context, cfg config.Config, client *openai.Client, cleanup *modules.Cleanup) (modules.Synthesizer, error) {
	if cfg.TTS.Provider == "google" {
		g, err := modules.NewGoogleSynthesizer(ctx, cfg.Google.CredentialsFile, modules.GoogleVoice{
			Language:     cfg.TTS.Language,
			Name:         cfg.TTS.Voice,
			SampleRate:   cfg.TTS.SampleRate,
			SpeakingRate: cfg.TTS.SpeakingRate,
			ChunkSamples: cfg.Playback.ChunkSamples,
		})
		if err != nil {
			return nil, err
		}
		cleanup.Add("tts client", g.Close)
		return g, nil
	}
	return modules.NewOpenAISynthesizer(client, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.SpeakingRate, cfg.Playback.ChunkSamples), nil
}
