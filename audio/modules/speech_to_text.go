package modules

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// Transcriber converts an utterance to text. Zero-length input yields ""
// without contacting the backend.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// GoogleTranscriber uses Cloud Speech-to-Text synchronous recognition.
type GoogleTranscriber struct {
	recognize func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	language  string
	close     func() error
}

// NewGoogleTranscriber dials Cloud Speech. credentialsFile may be empty to
// use application default credentials.
func NewGoogleTranscriber(ctx context.Context, credentialsFile, language string) (*GoogleTranscriber, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleTranscriber{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		language: language,
		close:    client.Close,
	}, nil
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(sampleRate),
			LanguageCode:    g.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: PCM16Bytes(Float32ToPCM16(samples))},
		},
	})
	if err != nil {
		return "", Wrap(KindTranscription, "google.recognize", err)
	}
	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

func (g *GoogleTranscriber) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

// OpenAITranscriber posts the utterance as a WAV file to the transcription
// endpoint of an OpenAI compatible server.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(client *openai.Client, model, language string) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{client: client, model: model, language: isoLanguage(language)}
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	wav := buildWAV(PCM16Bytes(Float32ToPCM16(samples)), sampleRate)
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Language: o.language,
	})
	if err != nil {
		return "", Wrap(KindTranscription, "openai.transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// isoLanguage reduces a BCP-47 tag such as "en-US" to "en".
func isoLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
