// Package render compiles content pieces into Handlebars templates and renders
// them for a single recipient.
package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/aymerick/raymond"
	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
)

// CompileKey identifies a compiled set. Only the campaign and journey ids are
// used, so every treatment or activity of one campaign or journey shares a slot.
type CompileKey struct {
	CampaignID string
	JourneyID  string
}

func (k CompileKey) String() string {
	return k.CampaignID + "_" + k.JourneyID
}

// KeyFor derives the compile key of a selector.
func KeyFor(sel types.Selector) CompileKey {
	return CompileKey{CampaignID: sel.CampaignID(), JourneyID: sel.JourneyID()}
}

// CompiledPiece is a content piece with its parsed template.
type CompiledPiece struct {
	PieceType            types.PieceType
	Channel              types.Channel
	DefaultSubstitutions string
	Template             *raymond.Template
}

// CompiledSet is the reusable result of compiling the content of one campaign or journey.
type CompiledSet struct {
	Key    CompileKey
	Pieces []CompiledPiece
}

// Len returns the number of compiled pieces.
func (s *CompiledSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Pieces)
}

// Compiler parses templates and memoizes the compiled sets.
type Compiler struct {
	cache   cache.Cache[CompileKey, *CompiledSet]
	helpers map[string]any
	logger  zerolog.Logger
}

// NewCompiler creates a Compiler. helpers are registered on every compiled
// template; each value must be a function accepted by raymond. Helpers may
// block, rendering waits for them.
func NewCompiler(setCache cache.Cache[CompileKey, *CompiledSet], helpers map[string]any, logger zerolog.Logger) (*Compiler, error) {
	if setCache == nil {
		return nil, errors.New("compiled set cache cannot be nil")
	}
	return &Compiler{
		cache:   setCache,
		helpers: helpers,
		logger:  logger.With().Str("component", "TemplateCompiler").Logger(),
	}, nil
}

// Compile returns the compiled set for key, compiling pieces on a cache miss.
// Pieces with an empty template are skipped. A parse error is returned and
// nothing is cached.
func (c *Compiler) Compile(ctx context.Context, key CompileKey, pieces []types.ContentPiece) (*CompiledSet, error) {
	if set, err := c.cache.FetchFromCache(ctx, key); err == nil {
		c.logger.Debug().Str("key", key.String()).Msg("Compiled template cache hit.")
		return set, nil
	}

	set := &CompiledSet{Key: key}
	for i, p := range pieces {
		if p.Template == "" {
			continue
		}
		tpl, err := c.parse(p.Template)
		if err != nil {
			return nil, fmt.Errorf("compile piece %d (%s/%s): %w", i, p.Channel, p.PieceType, err)
		}
		set.Pieces = append(set.Pieces, CompiledPiece{
			PieceType:            p.PieceType,
			Channel:              p.Channel,
			DefaultSubstitutions: p.DefaultSubstitutions,
			Template:             tpl,
		})
	}

	if err := c.cache.WriteToCache(ctx, key, set); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache compiled set.")
	}
	c.logger.Debug().Str("key", key.String()).Int("piece_count", len(set.Pieces)).Msg("Compiled templates.")
	return set, nil
}

func (c *Compiler) parse(source string) (tpl *raymond.Template, err error) {
	tpl, err = raymond.Parse(source)
	if err != nil {
		return nil, err
	}
	if len(c.helpers) == 0 {
		return tpl, nil
	}
	// raymond panics on helpers that are not functions.
	defer func() {
		if r := recover(); r != nil {
			tpl, err = nil, fmt.Errorf("register helpers: %v", r)
		}
	}()
	tpl.RegisterHelpers(c.helpers)
	return tpl, nil
}
