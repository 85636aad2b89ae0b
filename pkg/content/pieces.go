package content

import (
	"fmt"

	"github.com/illmade-knight/go-message-archive/pkg/types"
)

// templatePieces converts a stored template into content pieces for the given channel.
func templatePieces(ch types.Channel, tpl *Template) ([]types.ContentPiece, error) {
	if tpl == nil {
		return nil, nil
	}
	piece := func(pt types.PieceType, body string) types.ContentPiece {
		return types.ContentPiece{
			PieceType:            pt,
			Channel:              ch,
			Template:             body,
			DefaultSubstitutions: tpl.DefaultSubstitutions,
		}
	}

	switch ch {
	case types.ChannelEmail:
		return []types.ContentPiece{
			piece(types.PieceTitle, tpl.Subject),
			piece(types.PieceHTML, tpl.HTMLPart),
			piece(types.PieceText, tpl.TextPart),
		}, nil
	case types.ChannelSMS:
		return []types.ContentPiece{piece(types.PieceBody, tpl.Body)}, nil
	case types.ChannelPush:
		var pieces []types.ContentPiece
		for _, platform := range tpl.pushPlatforms() {
			if platform == nil || platform.Body == "" {
				continue
			}
			pieces = append(pieces,
				piece(types.PieceBody, platform.Body),
				piece(types.PieceRawContent, platform.RawContent),
				piece(types.PieceTitle, platform.Title),
			)
		}
		return pieces, nil
	case types.ChannelVoice:
		return []types.ContentPiece{piece(types.PieceBody, tpl.Body)}, nil
	default:
		return nil, fmt.Errorf("no content shape for channel %q", ch)
	}
}

// inlinePieces converts a treatment's inline message configuration into content pieces.
// A platform contributes only when its Title or Body is set.
func inlinePieces(mc MessageConfiguration) []types.ContentPiece {
	var pieces []types.ContentPiece
	for _, e := range mc.entries() {
		m := e.message
		if m == nil || (m.Title == "" && m.Body == "") {
			continue
		}
		pieces = append(pieces,
			types.ContentPiece{PieceType: types.PieceTitle, Channel: e.channel, Template: m.Title},
			types.ContentPiece{PieceType: types.PieceBody, Channel: e.channel, Template: m.Body},
			types.ContentPiece{PieceType: types.PieceHTML, Channel: e.channel, Template: m.HTMLBody},
			types.ContentPiece{PieceType: types.PieceRawContent, Channel: e.channel, Template: m.RawContent},
		)
	}
	return pieces
}

// activityTemplate returns the single channel a journey activity sends on.
func activityTemplate(a Activity) (types.Channel, string, error) {
	var (
		found []types.Channel
		name  string
	)
	for _, c := range []struct {
		ch  types.Channel
		ref *ActivityTemplate
	}{
		{types.ChannelEmail, a.Email},
		{types.ChannelSMS, a.SMS},
		{types.ChannelPush, a.Push},
		{types.ChannelVoice, a.Voice},
	} {
		if c.ref != nil {
			found = append(found, c.ch)
			name = c.ref.TemplateName
		}
	}
	if len(found) != 1 {
		return "", "", fmt.Errorf("activity must configure exactly one channel, found %v", found)
	}
	return found[0], name, nil
}
