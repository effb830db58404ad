package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICELOOP"

type Config struct {
	Audio     AudioConfig     `mapstructure:"audio"`
	VAD       VADConfig       `mapstructure:"vad"`
	Interrupt InterruptConfig `mapstructure:"interrupt"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Session   SessionConfig   `mapstructure:"session"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Google    GoogleConfig    `mapstructure:"google"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
}

// AudioConfig describes the microphone stream.
type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	BlockSize  int `mapstructure:"block_size"`
}

type VADConfig struct {
	SilenceThreshold float64       `mapstructure:"silence_threshold"`
	SilenceDuration  time.Duration `mapstructure:"silence_duration"`
}

type InterruptConfig struct {
	ProbeBlocks int  `mapstructure:"probe_blocks"`
	Keyboard    bool `mapstructure:"keyboard"`
}

type PlaybackConfig struct {
	// Backend is "portaudio" (blocking stream writes) or "speaker" (beep).
	Backend         string `mapstructure:"backend"`
	FramesPerBuffer int    `mapstructure:"frames_per_buffer"`
	ChunkSamples    int    `mapstructure:"chunk_samples"`
	CuePath         string `mapstructure:"cue_path"`
}

type SessionConfig struct {
	ExitPhrase   string        `mapstructure:"exit_phrase"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SegmenterConfig struct {
	MinLength int `mapstructure:"min_length"`
}

type STTConfig struct {
	Provider string `mapstructure:"provider"`
	Language string `mapstructure:"language"`
	Model    string `mapstructure:"model"`
}

type TTSConfig struct {
	Provider     string  `mapstructure:"provider"`
	Language     string  `mapstructure:"language"`
	Voice        string  `mapstructure:"voice"`
	Model        string  `mapstructure:"model"`
	SampleRate   int     `mapstructure:"sample_rate"`
	SpeakingRate float64 `mapstructure:"speaking_rate"`
}

type LLMConfig struct {
	Model        string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

var providers = map[string]struct{}{"google": {}, "openai": {}}

// Load reads .env (if present), applies defaults, the optional YAML/JSON file
// at path and VOICELOOP_* environment overrides, then validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", EnvPrefix+"_LLM_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("google.credentials_file", EnvPrefix+"_GOOGLE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.block_size", 160)
	v.SetDefault("vad.silence_threshold", 0.01)
	v.SetDefault("vad.silence_duration", 500*time.Millisecond)
	v.SetDefault("interrupt.probe_blocks", 1)
	v.SetDefault("interrupt.keyboard", true)
	v.SetDefault("playback.backend", "portaudio")
	v.SetDefault("playback.frames_per_buffer", 1024)
	v.SetDefault("playback.chunk_samples", 2048)
	v.SetDefault("playback.cue_path", "")
	v.SetDefault("session.exit_phrase", "bye")
	v.SetDefault("session.poll_interval", time.Second)
	v.SetDefault("segmenter.min_length", 10)
	v.SetDefault("stt.provider", "openai")
	v.SetDefault("stt.language", "en-US")
	v.SetDefault("stt.model", "whisper-1")
	v.SetDefault("tts.provider", "openai")
	v.SetDefault("tts.language", "en-US")
	v.SetDefault("tts.voice", "")
	v.SetDefault("tts.model", "tts-1")
	v.SetDefault("tts.sample_rate", 24000)
	v.SetDefault("tts.speaking_rate", 1.0)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("google.credentials_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

func (c *Config) normalize() {
	c.STT.Provider = strings.ToLower(strings.TrimSpace(c.STT.Provider))
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	c.Playback.Backend = strings.ToLower(strings.TrimSpace(c.Playback.Backend))
}

func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("audio.block_size must be positive, got %d", c.Audio.BlockSize)
	}
	if c.VAD.SilenceThreshold < 0 {
		return fmt.Errorf("vad.silence_threshold must not be negative, got %f", c.VAD.SilenceThreshold)
	}
	if c.VAD.SilenceDuration <= 0 {
		return fmt.Errorf("vad.silence_duration must be positive, got %s", c.VAD.SilenceDuration)
	}
	if c.Interrupt.ProbeBlocks <= 0 {
		return fmt.Errorf("interrupt.probe_blocks must be positive, got %d", c.Interrupt.ProbeBlocks)
	}
	if c.Playback.FramesPerBuffer <= 0 || c.Playback.ChunkSamples <= 0 {
		return fmt.Errorf("playback buffer sizes must be positive")
	}
	if c.Playback.Backend != "portaudio" && c.Playback.Backend != "speaker" {
		return fmt.Errorf("playback.backend %q is not supported", c.Playback.Backend)
	}
	if strings.TrimSpace(c.Session.ExitPhrase) == "" {
		return fmt.Errorf("session.exit_phrase is required")
	}
	if _, ok := providers[c.STT.Provider]; !ok {
		return fmt.Errorf("stt.provider %q is not supported", c.STT.Provider)
	}
	if _, ok := providers[c.TTS.Provider]; !ok {
		return fmt.Errorf("tts.provider %q is not supported", c.TTS.Provider)
	}
	if c.TTS.SampleRate <= 0 {
		return fmt.Errorf("tts.sample_rate must be positive, got %d", c.TTS.SampleRate)
	}
	return nil
}

// NeedsGoogle reports whether any configured collaborator talks to Google Cloud.
func (c Config) NeedsGoogle() bool {
	return c.STT.Provider == "google" || c.TTS.Provider == "google"
}
