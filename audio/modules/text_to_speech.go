package modules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// OpenAISpeechRate is the fixed rate of the "pcm" speech response format.
const OpenAISpeechRate = 24000

const defaultChunkSamples = 2048

// GoogleSynthesizer renders LINEAR16 speech with Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	synthesize   func(context.Context, *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error)
	close        func() error
	language     string
	voice        string
	sampleRate   int
	speakingRate float64
	chunkSamples int
}

type GoogleVoice struct {
	Language     string
	Name         string
	SampleRate   int
	SpeakingRate float64
	ChunkSamples int
}

func NewGoogleSynthesizer(ctx context.Context, credentialsFile string, voice GoogleVoice) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	g := newGoogleSynthesizer(func(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error) {
		return client.SynthesizeSpeech(ctx, req)
	}, voice)
	g.close = client.Close
	return g, nil
}

func newGoogleSynthesizer(fn func(context.Context, *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error), voice GoogleVoice) *GoogleSynthesizer {
	if voice.ChunkSamples <= 0 {
		voice.ChunkSamples = defaultChunkSamples
	}
	if voice.SpeakingRate <= 0 {
		voice.SpeakingRate = 1.0
	}
	return &GoogleSynthesizer{
		synthesize:   fn,
		language:     voice.Language,
		voice:        voice.Name,
		sampleRate:   voice.SampleRate,
		speakingRate: voice.SpeakingRate,
		chunkSamples: voice.ChunkSamples,
	}
}

func (g *GoogleSynthesizer) SampleRate() int { return g.sampleRate }

// Synthesize requests the whole sentence, then yields it in chunks.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, sentence string) iter.Seq2[[]int16, error] {
	return func(yield func([]int16, error) bool) {
		resp, err := g.synthesize(ctx, &tts.SynthesizeSpeechRequest{
			Input: &tts.SynthesisInput{
				InputSource: &tts.SynthesisInput_Text{Text: sentence},
			},
			Voice: &tts.VoiceSelectionParams{
				LanguageCode: g.language,
				Name:         g.voice,
			},
			AudioConfig: &tts.AudioConfig{
				AudioEncoding:   tts.AudioEncoding_LINEAR16,
				SampleRateHertz: int32(g.sampleRate),
				SpeakingRate:    g.speakingRate,
			},
		})
		if err != nil {
			yield(nil, Wrap(KindSynthesis, "google.synthesize", err))
			return
		}
		samples := BytesToPCM16(stripWAVHeader(resp.GetAudioContent()))
		for _, chunk := range chunkPCM(samples, g.chunkSamples) {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (g *GoogleSynthesizer) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

// OpenAISynthesizer streams raw PCM from the speech endpoint, yielding
// chunks as the response body arrives.
type OpenAISynthesizer struct {
	client       *openai.Client
	model        openai.SpeechModel
	voice        openai.SpeechVoice
	speed        float64
	chunkSamples int
}

func NewOpenAISynthesizer(client *openai.Client, model, voice string, speed float64, chunkSamples int) *OpenAISynthesizer {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	if speed <= 0 {
		speed = 1.0
	}
	if chunkSamples <= 0 {
		chunkSamples = defaultChunkSamples
	}
	return &OpenAISynthesizer{
		client:       client,
		model:        openai.SpeechModel(model),
		voice:        openai.SpeechVoice(voice),
		speed:        speed,
		chunkSamples: chunkSamples,
	}
}

func (o *OpenAISynthesizer) SampleRate() int { return OpenAISpeechRate }

func (o *OpenAISynthesizer) Synthesize(ctx context.Context, sentence string) iter.Seq2[[]int16, error] {
	return func(yield func([]int16, error) bool) {
		body, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          o.model,
			Input:          sentence,
			Voice:          o.voice,
			ResponseFormat: openai.SpeechResponseFormatPcm,
			Speed:          o.speed,
		})
		if err != nil {
			yield(nil, Wrap(KindSynthesis, "openai.speech", err))
			return
		}
		defer body.Close()

		buf := make([]byte, o.chunkSamples*2)
		for {
			n, err := io.ReadFull(body, buf)
			if n >= 2 {
				if !yield(BytesToPCM16(buf[:n]), nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				yield(nil, Wrap(KindSynthesis, "openai.speech.read", err))
				return
			}
		}
	}
}
