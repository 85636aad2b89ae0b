package icestore

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-message-archive/pkg/types"
)

// ErrNothingToArchive is returned when there are no rendered pieces to encode.
var ErrNothingToArchive = errors.New("nothing to archive")

// Envelope header names.
const (
	HeaderMIMEVersion       = "MIME-Version"
	HeaderContentType       = "Content-Type"
	HeaderEndpointID        = "EndpointId"
	HeaderApplicationID     = "ApplicationId"
	HeaderEventTimestamp    = "EventTimestamp"
	HeaderCampaignID        = "CampaignId"
	HeaderTreatmentID       = "TreatmentId"
	HeaderJourneyID         = "JourneyId"
	HeaderJourneyActivityID = "JourneyActivityId"
	HeaderChannel           = "Channel"
	HeaderSubjectTitle      = "Subject/Title"
	HeaderContentPieceType  = "Content-Piece-Type"
)

const partContentType = "text/plain; charset=utf-8"

// EnvelopeMeta is the event metadata written into the envelope headers.
type EnvelopeMeta struct {
	ApplicationID  string
	EventTimestamp int64
	Selector       types.Selector
}

// Header is a single envelope header.
type Header struct {
	Name  string
	Value string
}

// Part is one body part of an envelope.
type Part struct {
	PieceType types.PieceType
	Body      string
}

// Envelope is a parsed archive envelope.
type Envelope struct {
	Headers []Header
	Parts   []Part
}

// Get returns the value of the first header called name.
func (e *Envelope) Get(name string) string {
	for _, h := range e.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// HeaderNames lists the header names in envelope order.
func (e *Envelope) HeaderNames() []string {
	names := make([]string, len(e.Headers))
	for i, h := range e.Headers {
		names[i] = h.Name
	}
	return names
}

// Encoder serializes rendered pieces into a multipart/mixed envelope. The
// output is a pure function of its inputs.
//
// With PromoteTitle set, the first TITLE piece becomes a Subject/Title header
// and is not written as a body part. Any later TITLE pieces stay in the body.
type Encoder struct {
	PromoteTitle bool
}

// Encode builds the envelope. An empty piece list returns ErrNothingToArchive.
func (e Encoder) Encode(pieces []types.RenderedPiece, endpointID string, meta EnvelopeMeta) ([]byte, error) {
	data, _, err := e.encode(pieces, endpointID, meta)
	return data, err
}

// encode builds the envelope and returns it with its Content-Type, boundary included.
func (e Encoder) encode(pieces []types.RenderedPiece, endpointID string, meta EnvelopeMeta) ([]byte, string, error) {
	if len(pieces) == 0 {
		return nil, "", ErrNothingToArchive
	}

	promoted := -1
	if e.PromoteTitle {
		for i, p := range pieces {
			if p.PieceType == types.PieceTitle {
				promoted = i
				break
			}
		}
	}

	var title *types.RenderedPiece
	bodyPieces := pieces
	if promoted >= 0 {
		title = &pieces[promoted]
		bodyPieces = make([]types.RenderedPiece, 0, len(pieces)-1)
		bodyPieces = append(bodyPieces, pieces[:promoted]...)
		bodyPieces = append(bodyPieces, pieces[promoted+1:]...)
	}
	headers := envelopeHeaders(pieces[0].Channel, title, endpointID, meta)

	boundary := boundaryFor(headers, bodyPieces)
	contentType := mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": boundary})
	var buf bytes.Buffer
	writeHeader(&buf, HeaderMIMEVersion, "1.0")
	writeHeader(&buf, HeaderContentType, contentType)
	for _, h := range headers {
		writeHeader(&buf, h.Name, h.Value)
	}
	buf.WriteString("\r\n")

	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, "", fmt.Errorf("set boundary: %w", err)
	}
	for _, p := range bodyPieces {
		h := make(textproto.MIMEHeader)
		h.Set(HeaderContentPieceType, string(p.PieceType))
		h.Set(HeaderContentType, partContentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part: %w", err)
		}
		if _, err := io.WriteString(w, p.HTML); err != nil {
			return nil, "", fmt.Errorf("write part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), contentType, nil
}

// envelopeHeaders returns the metadata headers in envelope order.
func envelopeHeaders(channel types.Channel, title *types.RenderedPiece, endpointID string, meta EnvelopeMeta) []Header {
	headers := []Header{
		{HeaderEndpointID, endpointID},
		{HeaderApplicationID, meta.ApplicationID},
		{HeaderEventTimestamp, strconv.FormatInt(meta.EventTimestamp, 10)},
	}
	switch sel := meta.Selector; {
	case sel.Campaign != nil && sel.Campaign.CampaignID != "":
		headers = append(headers,
			Header{HeaderCampaignID, sel.Campaign.CampaignID},
			Header{HeaderTreatmentID, sel.Campaign.TreatmentID},
		)
	case sel.Journey != nil && sel.Journey.JourneyID != "":
		headers = append(headers,
			Header{HeaderJourneyID, sel.Journey.JourneyID},
			Header{HeaderJourneyActivityID, sel.Journey.ActivityID},
		)
	}
	headers = append(headers, Header{HeaderChannel, string(channel)})
	if title != nil {
		headers = append(headers, Header{HeaderSubjectTitle, title.HTML})
	}
	return headers
}

// boundaryFor derives the multipart boundary from the envelope content.
func boundaryFor(headers []Header, pieces []types.RenderedPiece) string {
	h := sha256.New()
	for _, hd := range headers {
		fmt.Fprintf(h, "%s\x00%s\x00", hd.Name, hd.Value)
	}
	for _, p := range pieces {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00", p.PieceType, p.Channel, p.HTML)
	}
	return "archive-" + hex.EncodeToString(h.Sum(nil))[:32]
}

// writeHeader writes one header line, RFC 2047 encoding values that are not
// plain ASCII. Values that already look like encoded words are always encoded
// so that they read back verbatim.
func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	if strings.Contains(value, "=?") {
		buf.WriteString("=?utf-8?b?" + base64.StdEncoding.EncodeToString([]byte(value)) + "?=")
	} else {
		buf.WriteString(mime.QEncoding.Encode("utf-8", value))
	}
	buf.WriteString("\r\n")
}

// ParseEnvelope reads an envelope produced by Encoder back into its headers and parts.
func ParseEnvelope(data []byte) (*Envelope, error) {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	dec := new(mime.WordDecoder)

	env := &Envelope{}
	var boundary string
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("read envelope header: %w", err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed envelope header %q", line)
		}
		value = strings.TrimPrefix(value, " ")
		switch name {
		case HeaderMIMEVersion:
			continue
		case HeaderContentType:
			mediaType, params, err := mime.ParseMediaType(value)
			if err != nil {
				return nil, fmt.Errorf("parse content type: %w", err)
			}
			if !strings.HasPrefix(mediaType, "multipart/") {
				return nil, fmt.Errorf("unexpected envelope media type %q", mediaType)
			}
			boundary = params["boundary"]
			continue
		}
		decoded, err := dec.DecodeHeader(value)
		if err != nil {
			return nil, fmt.Errorf("decode header %s: %w", name, err)
		}
		env.Headers = append(env.Headers, Header{Name: name, Value: decoded})
	}
	if boundary == "" {
		return nil, errors.New("envelope has no multipart boundary")
	}

	mr := multipart.NewReader(tp.R, boundary)
	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}
		body, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read part body: %w", err)
		}
		env.Parts = append(env.Parts, Part{
			PieceType: types.PieceType(part.Header.Get(HeaderContentPieceType)),
			Body:      string(body),
		})
	}
	return env, nil
}
