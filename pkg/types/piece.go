// Package types holds the data model shared by the routing, resolution,
// rendering and archival stages.
package types

import "fmt"

// Channel identifies the delivery channel a piece of content belongs to.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelVoice Channel = "VOICE"
)

// Channels lists every channel in template lookup order.
var Channels = []Channel{ChannelEmail, ChannelPush, ChannelSMS, ChannelVoice}

// ParseChannel converts a string into a Channel, rejecting unknown values.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelVoice:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

func (c Channel) String() string { return string(c) }

// PieceType names a fragment of a multi-part message.
type PieceType string

const (
	PieceTitle      PieceType = "TITLE"
	PieceBody       PieceType = "BODY"
	PieceHTML       PieceType = "HTML"
	PieceText       PieceType = "TEXT"
	PieceRawContent PieceType = "RAWCONTENT"
)

// ParsePieceType converts a string into a PieceType, rejecting unknown values.
func ParsePieceType(s string) (PieceType, error) {
	switch p := PieceType(s); p {
	case PieceTitle, PieceBody, PieceHTML, PieceText, PieceRawContent:
		return p, nil
	default:
		return "", fmt.Errorf("unknown piece type %q", s)
	}
}

func (p PieceType) String() string { return string(p) }

// ContentPiece is one fragment of a message template as returned by content resolution.
type ContentPiece struct {
	PieceType PieceType `json:"pieceType"`
	Channel   Channel   `json:"channel"`
	// Template is the Handlebars source. Pieces with an empty template are
	// dropped before compilation.
	Template string `json:"template"`
	// DefaultSubstitutions is an optional JSON object used for any attribute
	// the recipient does not carry.
	DefaultSubstitutions string `json:"defaultSubstitutions,omitempty"`
}

// RenderedPiece is the output of rendering a single ContentPiece for one recipient.
// HTML holds the substituted text regardless of the piece type.
type RenderedPiece struct {
	PieceType PieceType `json:"pieceType"`
	Channel   Channel   `json:"channel"`
	HTML      string    `json:"html"`
}
