package std

import (
	"context"
	"encoding/base64"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("audio.tts", newAudioTTS)
	blocks.Register("audio.stt", newAudioSTT)
}

// SpeechProvider is the seam audio.tts/audio.stt call through. No
// text-to-speech or speech-to-text SDK exists anywhere in this module's
// dependency set, so there is no built-in implementation to wire by
// default — audioProvider stays nil until a deployment installs one, and
// both blocks degrade to a deterministic stub in the meantime, mirroring
// llm.simple's unconfigured-echo path.
type SpeechProvider interface {
	Synthesize(ctx context.Context, text, voice, format string) (data []byte, mime string, err error)
	Transcribe(ctx context.Context, data []byte, mime string) (text string, err error)
}

var audioProvider SpeechProvider

// SetSpeechProvider installs the provider audio.tts/audio.stt call
// through. Passing nil restores the deterministic stub behavior.
func SetSpeechProvider(p SpeechProvider) { audioProvider = p }

type audioTTSBlock struct {
	text   string
	voice  string
	format string
}

func newAudioTTS(settings map[string]any) (blocks.Block, error) {
	text := blocks.GetString(settings, "text", "")
	if text == "" {
		return nil, blocks.ConfigError("audio.tts: %q setting is required", "text")
	}
	format := blocks.GetString(settings, "format", "mp3")
	if format != "mp3" && format != "wav" {
		return nil, blocks.ConfigError("audio.tts: unsupported %q value %q", "format", format)
	}
	return &audioTTSBlock{
		text:   text,
		voice:  blocks.GetString(settings, "voice", "alloy"),
		format: format,
	}, nil
}

func (b *audioTTSBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *audioTTSBlock) ToolCompatible() bool   { return true }
func (b *audioTTSBlock) Extras() map[string]any { return nil }

func (b *audioTTSBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"text"},
		"properties": map[string]any{
			"text":   map[string]any{"type": "string", "minLength": 1},
			"voice":  map[string]any{"type": "string"},
			"format": map[string]any{"type": "string", "enum": []string{"mp3", "wav"}},
		},
	}
}

func (b *audioTTSBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)
	text, err := template.Render(b.text, flat, template.Permissive)
	if err != nil {
		text = b.text
	}

	mime := "audio/mpeg"
	if b.format == "wav" {
		mime = "audio/wav"
	}
	filename := "speech." + b.format

	var data []byte
	if audioProvider != nil {
		data, mime, err = audioProvider.Synthesize(ctx, text, b.voice, b.format)
		if err != nil {
			return blocks.Output{}, blocks.DependencyError(err)
		}
	} else {
		data = stubAudioBytes
	}

	media := blocks.Media{
		Kind:     "audio",
		Mime:     mime,
		BytesB64: base64.StdEncoding.EncodeToString(data),
		Filename: filename,
		Size:     len(data),
	}
	return blocks.Output{Data: map[string]any{"media": media}}, nil
}

type audioSTTBlock struct {
	mediaTpl string
}

func newAudioSTT(settings map[string]any) (blocks.Block, error) {
	mediaTpl := blocks.GetString(settings, "media", "")
	if mediaTpl == "" {
		return nil, blocks.ConfigError("audio.stt: %q setting is required", "media")
	}
	return &audioSTTBlock{mediaTpl: mediaTpl}, nil
}

func (b *audioSTTBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *audioSTTBlock) ToolCompatible() bool   { return true }
func (b *audioSTTBlock) Extras() map[string]any { return nil }

func (b *audioSTTBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"required":   []string{"media"},
		"properties": map[string]any{"media": map[string]any{"type": "string", "minLength": 1}},
	}
}

func (b *audioSTTBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)
	ref, err := template.Render(b.mediaTpl, flat, template.Permissive)
	if err != nil {
		ref = b.mediaTpl
	}

	data, mime, err := decodeMediaRef(ref, flat)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("audio.stt: %v", err)
	}

	if audioProvider == nil || len(data) < 1000 {
		return blocks.Output{Data: map[string]any{"text": ""}}, nil
	}

	text, err := audioProvider.Transcribe(ctx, data, mime)
	if err != nil {
		return blocks.Output{}, blocks.DependencyError(err)
	}
	return blocks.Output{Data: map[string]any{"text": text}}, nil
}

// decodeMediaRef accepts either a rendered base64 payload or the
// "bytes_b64" field of a Media-shaped upstream value.
func decodeMediaRef(ref string, flat map[string]any) ([]byte, string, error) {
	if ref != "" {
		if data, err := base64.StdEncoding.DecodeString(ref); err == nil {
			return data, "audio/mpeg", nil
		}
	}
	for _, v := range flat {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		b64, _ := m["bytes_b64"].(string)
		if b64 == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			continue
		}
		mime, _ := m["mime"].(string)
		if mime == "" {
			mime = "audio/mpeg"
		}
		return data, mime, nil
	}
	return nil, "", blocks.ConfigError("%q does not resolve to audio bytes", "media")
}

// stubAudioBytes is a minimal non-empty placeholder, not a valid audio
// file, returned when no SpeechProvider is configured.
var stubAudioBytes = []byte{0x49, 0x44, 0x33}
