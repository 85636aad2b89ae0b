package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaskedAddress replaces the recipient address in every rendering context.
const MaskedAddress = "XXXXXXXX"

// Renderer applies compiled templates to a recipient's endpoint attributes.
type Renderer struct {
	logger zerolog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(logger zerolog.Logger) *Renderer {
	return &Renderer{logger: logger.With().Str("component", "MessageRenderer").Logger()}
}

// Render renders every piece of set for one endpoint. Pieces render
// concurrently; the result has the same order as set.Pieces. Any failure
// fails the whole render.
func (r *Renderer) Render(ctx context.Context, set *CompiledSet, endpoint map[string]any, endpointID string) ([]types.RenderedPiece, error) {
	if set.Len() == 0 {
		return nil, nil
	}

	results := make([]types.RenderedPiece, len(set.Pieces))
	g, gctx := errgroup.WithContext(ctx)
	for i, piece := range set.Pieces {
		i, piece := i, piece
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := renderContext(endpoint, endpointID, piece.DefaultSubstitutions)
			if err != nil {
				return fmt.Errorf("piece %d (%s/%s): %w", i, piece.Channel, piece.PieceType, err)
			}
			out, err := piece.Template.Exec(data)
			if err != nil {
				return fmt.Errorf("render piece %d (%s/%s): %w", i, piece.Channel, piece.PieceType, err)
			}
			results[i] = types.RenderedPiece{PieceType: piece.PieceType, Channel: piece.Channel, HTML: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug().Str("endpoint_id", endpointID).Int("piece_count", len(results)).Msg("Rendered pieces.")
	return results, nil
}

// renderContext builds the per-piece data: a copy of the endpoint with Id and
// Address forced, then the default substitutions for any path still missing.
func renderContext(endpoint map[string]any, endpointID, defaults string) (map[string]any, error) {
	data := copyMap(endpoint)
	data["Id"] = endpointID
	data["Address"] = MaskedAddress

	if defaults == "" {
		return data, nil
	}
	var fallback map[string]any
	if err := json.Unmarshal([]byte(defaults), &fallback); err != nil {
		return nil, fmt.Errorf("parse default substitutions: %w", err)
	}
	mergeMissing(data, fallback)
	return data, nil
}

// mergeMissing copies values from src into dst where dst has no value, descending into nested objects.
func mergeMissing(dst, src map[string]any) {
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok {
			dst[k] = copyValue(sv)
			continue
		}
		dm, dIsMap := dv.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		if dIsMap && sIsMap {
			mergeMissing(dm, sm)
		}
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
