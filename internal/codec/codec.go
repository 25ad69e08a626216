// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package codec converts conversation messages to and from the wire
// representation sent to the remote model.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Block types and source types used in structured payloads.
const (
	BlockTypeImage = "image"
	BlockTypeText  = "text"
	SourceTypeB64  = "base64"
)

// WireMessage is one {role, content} turn as sent to the remote model.
type WireMessage struct {
	Role    string      `json:"role"`
	Content WireContent `json:"content"`
}

// WireContent is either a plain string or a list of structured blocks.
// Exactly one of Text and Blocks is meaningful; Blocks != nil selects the
// structured form.
type WireContent struct {
	Text   string
	Blocks []WireBlock
}

// WireBlock is one structured content block.
type WireBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries base64 image data with its media type.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// IsStructured reports whether the content uses the block form.
func (c WireContent) IsStructured() bool {
	return c.Blocks != nil
}

// MarshalJSON encodes text content as a JSON string and structured content
// as an array of blocks.
func (c WireContent) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either a JSON string or an array of blocks.
func (c *WireContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		c.Blocks = nil
		return json.Unmarshal(data, &c.Text)
	}
	var blocks []WireBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or an array of blocks: %w", err)
	}
	if blocks == nil {
		blocks = []WireBlock{}
	}
	c.Text = ""
	c.Blocks = blocks
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnsupportedMediaType is returned for images the remote model cannot take.
var ErrUnsupportedMediaType = errors.New("unsupported image media type")

// EncodingError reports a message that could not be put on the wire.
type EncodingError struct {
	MessageID string
	Err       error
}

func (e *EncodingError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("encode message %s: %v", e.MessageID, e.Err)
	}
	return fmt.Sprintf("encode message: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError reports a wire payload that could not be turned back into a
// message.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// =============================================================================
// MEDIA TYPES
// =============================================================================

// supportedMediaTypes lists the image types accepted on the wire.
var supportedMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// SupportedMediaType reports whether mt can be sent to the remote model.
func SupportedMediaType(mt string) bool {
	return supportedMediaTypes[mt]
}

// =============================================================================
// ENCODE / DECODE
// =============================================================================

// EncodeForWire maps a message to its wire form. Text becomes a plain string
// payload; an image becomes a single base64 image block.
func EncodeForWire(msg model.Message) (WireMessage, error) {
	wire := WireMessage{Role: msg.Role.String()}

	switch c := msg.Content.(type) {
	case model.Text:
		wire.Content = WireContent{Text: c.Value}
	case model.Image:
		if c.MediaType == "" {
			return WireMessage{}, &EncodingError{MessageID: msg.ID, Err: errors.New("missing media type")}
		}
		if !SupportedMediaType(c.MediaType) {
			return WireMessage{}, &EncodingError{MessageID: msg.ID, Err: fmt.Errorf("%w: %s", ErrUnsupportedMediaType, c.MediaType)}
		}
		if len(c.Data) == 0 {
			return WireMessage{}, &EncodingError{MessageID: msg.ID, Err: errors.New("image has no data")}
		}
		wire.Content = WireContent{Blocks: []WireBlock{{
			Type: BlockTypeImage,
			Source: &ImageSource{
				Type:      SourceTypeB64,
				MediaType: c.MediaType,
				Data:      base64.StdEncoding.EncodeToString(c.Data),
			},
		}}}
	default:
		return WireMessage{}, &EncodingError{MessageID: msg.ID, Err: errors.New("message has no content")}
	}

	return wire, nil
}

// EncodeAll encodes a history in order. The first failure aborts the batch.
func EncodeAll(msgs []model.Message) ([]WireMessage, error) {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		w, err := EncodeForWire(m)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// ImagePayload inspects a wire message and returns its image source.
// ok is false for text payloads; no error is raised for them.
func ImagePayload(wire WireMessage) (src ImageSource, ok bool) {
	if !wire.Content.IsStructured() {
		return ImageSource{}, false
	}
	for _, b := range wire.Content.Blocks {
		if b.Type == BlockTypeImage && b.Source != nil {
			return *b.Source, true
		}
	}
	return ImageSource{}, false
}

// DecodeFromWire is the inverse of EncodeForWire.
func DecodeFromWire(wire WireMessage) (model.Message, error) {
	role, err := model.ParseRole(wire.Role)
	if err != nil {
		return model.Message{}, &DecodingError{Err: err}
	}

	src, isImage := ImagePayload(wire)
	if !isImage {
		if wire.Content.IsStructured() {
			return decodeTextBlocks(role, wire.Content.Blocks)
		}
		return model.NewMessage(role, model.Text{Value: wire.Content.Text}), nil
	}
	if n := len(wire.Content.Blocks); n != 1 {
		return model.Message{}, &DecodingError{Err: fmt.Errorf("image payload must be a single block, got %d", n)}
	}

	if src.MediaType == "" {
		return model.Message{}, &DecodingError{Err: errors.New("image block is missing media type")}
	}
	if src.Type != "" && src.Type != SourceTypeB64 {
		return model.Message{}, &DecodingError{Err: fmt.Errorf("unsupported image source type %q", src.Type)}
	}
	data, err := base64.StdEncoding.DecodeString(src.Data)
	if err != nil {
		return model.Message{}, &DecodingError{Err: fmt.Errorf("malformed base64 image data: %w", err)}
	}
	if len(data) == 0 {
		return model.Message{}, &DecodingError{Err: errors.New("image block has no data")}
	}
	return model.NewMessage(role, model.Image{MediaType: src.MediaType, Data: data}), nil
}

// decodeTextBlocks joins the text blocks of a structured payload that
// carries no image.
func decodeTextBlocks(role model.Role, blocks []WireBlock) (model.Message, error) {
	var sb bytes.Buffer
	for _, b := range blocks {
		if b.Type != BlockTypeText {
			return model.Message{}, &DecodingError{Err: fmt.Errorf("unknown block type %q", b.Type)}
		}
		sb.WriteString(b.Text)
	}
	return model.NewMessage(role, model.Text{Value: sb.String()}), nil
}
