package livevoice

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultAudioMIMEType is the media type attached to audio chunks that do not
// carry one of their own.
const DefaultAudioMIMEType = "audio/pcm"

// roleUser is the only role a client ever sends.
const roleUser = "user"

// HexBytes is a byte payload carried on the wire as a lowercase hexadecimal
// string. The empty payload is encoded as "" and decodes back to an empty,
// non-nil slice.
type HexBytes []byte

// MarshalJSON encodes the payload as a hex JSON string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes a hex JSON string. Upper- and lowercase digits are
// both accepted.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("payload is not a string: %w", err)
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("payload is not valid hex: %w", err)
	}
	*b = out
	return nil
}

// MediaChunk is one realtime media payload.
type MediaChunk struct {
	MimeType string   `json:"mime_type"`
	Data     HexBytes `json:"data"`
}

// RealtimeInput carries streamed media from the client.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"media_chunks"`
}

// InlineData is binary content embedded in a model turn part.
type InlineData struct {
	MimeType string   `json:"mime_type,omitempty"`
	Data     HexBytes `json:"data"`
}

// Part is one element of a turn. A part holds text, inline data, or both.
type Part struct {
	Text       *string     `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// UnmarshalJSON accepts both the snake_case and camelCase spellings of the
// inline data key; peers are known to send either.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text            *string     `json:"text"`
		InlineData      *InlineData `json:"inline_data"`
		InlineDataCamel *InlineData `json:"inlineData"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Text = raw.Text
	p.InlineData = raw.InlineData
	if p.InlineData == nil {
		p.InlineData = raw.InlineDataCamel
	}
	return nil
}

// Turn is one conversational turn sent by the client.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// ClientContent carries whole text turns from the client.
type ClientContent struct {
	Turns        []Turn `json:"turns"`
	TurnComplete bool   `json:"turn_complete"`
}

// ModelTurn holds the parts the peer produced for the current turn.
type ModelTurn struct {
	Parts []Part `json:"parts"`
}

// ServerContent carries incremental model output from the peer.
type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
}

// Setup is the optional first message of a session.
type Setup struct {
	Model            string            `json:"model"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig selects the modalities the peer should answer with.
type GenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// Envelope is the wire representation of one protocol message. Exactly one
// field is set on a well-formed message; an envelope with no field set is a
// message this client does not understand.
type Envelope struct {
	Setup         *Setup          `json:"setup,omitempty"`
	SetupComplete json.RawMessage `json:"setupComplete,omitempty"`
	RealtimeInput *RealtimeInput  `json:"realtime_input,omitempty"`
	ClientContent *ClientContent  `json:"client_content,omitempty"`
	ServerContent *ServerContent  `json:"serverContent,omitempty"`
}

// Kind names the populated variant, or "unknown".
func (e Envelope) Kind() string {
	switch {
	case e.RealtimeInput != nil:
		return "realtime_input"
	case e.ClientContent != nil:
		return "client_content"
	case e.ServerContent != nil:
		return "server_content"
	case e.Setup != nil:
		return "setup"
	case e.SetupComplete != nil:
		return "setup_complete"
	default:
		return "unknown"
	}
}

// EncodeAudio wraps a single audio chunk in a realtime input envelope.
func EncodeAudio(chunk AudioChunk) ([]byte, error) {
	mime := chunk.MimeType
	if mime == "" {
		mime = DefaultAudioMIMEType
	}
	data := chunk.Data
	if data == nil {
		data = []byte{}
	}
	return json.Marshal(Envelope{RealtimeInput: &RealtimeInput{
		MediaChunks: []MediaChunk{{MimeType: mime, Data: data}},
	}})
}

// EncodeTextTurn wraps text in a client content envelope with a single user turn.
func EncodeTextTurn(text string, turnComplete bool) ([]byte, error) {
	return json.Marshal(Envelope{ClientContent: &ClientContent{
		Turns:        []Turn{{Role: roleUser, Parts: []Part{{Text: &text}}}},
		TurnComplete: turnComplete,
	}})
}

// encodeSetup builds the session setup message for model.
func encodeSetup(model string, modalities []string) ([]byte, error) {
	s := &Setup{Model: qualifyModel(model)}
	if len(modalities) > 0 {
		s.GenerationConfig = &GenerationConfig{ResponseModalities: modalities}
	}
	return json.Marshal(Envelope{Setup: s})
}

func qualifyModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// Decode parses one inbound frame. Malformed input yields a *DecodeError that
// keeps a copy of the raw frame; Decode never panics on peer input.
func Decode(frame []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, NewDecodeError(frame, errors.New("frame is not a JSON object"))
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, NewDecodeError(frame, err)
	}
	return env, nil
}
