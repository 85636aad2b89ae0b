// Package content resolves the templates and inline content that belong to a
// campaign treatment or a journey activity.
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned by a LookupService when a campaign, journey or template does not exist.
var ErrNotFound = errors.New("content not found")

// LookupService is the content store the resolver reads from.
type LookupService interface {
	GetCampaign(ctx context.Context, applicationID, campaignID string) (*Campaign, error)
	GetJourney(ctx context.Context, applicationID, journeyID string) (*Journey, error)
	GetTemplate(ctx context.Context, channel types.Channel, name string) (*Template, error)
}

// Resolver turns a selector into an ordered list of content pieces.
// Results, including empty ones, are memoized in the injected cache.
type Resolver struct {
	lookup LookupService
	cache  cache.Cache[string, []types.ContentPiece]
	logger zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(
	lookup LookupService,
	contentCache cache.Cache[string, []types.ContentPiece],
	logger zerolog.Logger,
) (*Resolver, error) {
	if lookup == nil {
		return nil, errors.New("lookup service cannot be nil")
	}
	if contentCache == nil {
		return nil, errors.New("content cache cannot be nil")
	}
	return &Resolver{
		lookup: lookup,
		cache:  contentCache,
		logger: logger.With().Str("component", "ContentResolver").Logger(),
	}, nil
}

// CacheKey builds the memoization key for a selector.
func CacheKey(applicationID string, sel types.Selector) string {
	if sel.Campaign != nil {
		return fmt.Sprintf("%s :: %s :: %s", applicationID, sel.Campaign.CampaignID, sel.Campaign.TreatmentID)
	}
	if sel.Journey != nil {
		return fmt.Sprintf("%s :: %s :: %s", applicationID, sel.Journey.JourneyID, sel.Journey.ActivityID)
	}
	return applicationID
}

// Resolve returns the content for the selector. It never fails: lookup
// errors are logged and reported as no content.
func (r *Resolver) Resolve(ctx context.Context, applicationID string, sel types.Selector) []types.ContentPiece {
	key := CacheKey(applicationID, sel)
	if pieces, err := r.cache.FetchFromCache(ctx, key); err == nil {
		r.logger.Debug().Str("key", key).Int("piece_count", len(pieces)).Msg("Content cache hit.")
		return pieces
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("key", key).Msg("Content cache read failed, resolving from source.")
	}

	pieces, err := r.resolve(ctx, applicationID, sel)
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("Content resolution failed, treating as no content.")
		pieces = []types.ContentPiece{}
	} else {
		r.logger.Info().Str("key", key).Int("piece_count", len(pieces)).Msg("Resolved content.")
	}

	if err := r.cache.WriteToCache(ctx, key, pieces); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache resolved content.")
	}
	return pieces
}

func (r *Resolver) resolve(ctx context.Context, applicationID string, sel types.Selector) ([]types.ContentPiece, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.Campaign != nil {
		return r.campaignContent(ctx, applicationID, sel.Campaign)
	}
	return r.journeyContent(ctx, applicationID, sel.Journey)
}

func (r *Resolver) campaignContent(ctx context.Context, applicationID string, sel *types.CampaignSelector) ([]types.ContentPiece, error) {
	campaign, err := r.lookup.GetCampaign(ctx, applicationID, sel.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", sel.CampaignID, err)
	}

	treatment, err := r.selectTreatment(campaign, sel.TreatmentID)
	if err != nil {
		return nil, err
	}

	pieces, err := r.treatmentTemplates(ctx, treatment.TemplateConfiguration)
	if err != nil {
		return nil, err
	}
	return append(pieces, inlinePieces(treatment.MessageConfiguration)...), nil
}

// selectTreatment picks the treatment for an id. An id that matches no
// additional treatment falls back to the first one.
// TODO: known defect, the fallback can archive content from the wrong
// treatment. Return no content instead once product confirms the intended behaviour.
func (r *Resolver) selectTreatment(c *Campaign, treatmentID string) (*Treatment, error) {
	if treatmentID == BaseTreatmentID {
		return c.BaseTreatment(), nil
	}
	for i := range c.AdditionalTreatments {
		if c.AdditionalTreatments[i].ID == treatmentID {
			return &c.AdditionalTreatments[i], nil
		}
	}
	if len(c.AdditionalTreatments) == 0 {
		return nil, fmt.Errorf("campaign %s has no treatment %q", c.ID, treatmentID)
	}
	r.logger.Warn().
		Str("campaign_id", c.ID).
		Str("treatment_id", treatmentID).
		Str("fallback_treatment_id", c.AdditionalTreatments[0].ID).
		Msg("Treatment not found, falling back to first additional treatment.")
	return &c.AdditionalTreatments[0], nil
}

// treatmentTemplates fetches the template of every configured channel
// concurrently and concatenates the results in channel order.
func (r *Resolver) treatmentTemplates(ctx context.Context, tc TemplateConfiguration) ([]types.ContentPiece, error) {
	results := make([][]types.ContentPiece, len(types.Channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range types.Channels {
		i, ch := i, ch
		ref := tc.ref(ch)
		if ref == nil {
			continue
		}
		g.Go(func() error {
			pieces, err := r.templateContent(gctx, ch, ref.Name)
			if err != nil {
				return err
			}
			results[i] = pieces
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pieces []types.ContentPiece
	for _, res := range results {
		pieces = append(pieces, res...)
	}
	return pieces, nil
}

func (r *Resolver) journeyContent(ctx context.Context, applicationID string, sel *types.JourneySelector) ([]types.ContentPiece, error) {
	journey, err := r.lookup.GetJourney(ctx, applicationID, sel.JourneyID)
	if err != nil {
		return nil, fmt.Errorf("get journey %s: %w", sel.JourneyID, err)
	}
	activity, ok := journey.Activities[sel.ActivityID]
	if !ok {
		return nil, fmt.Errorf("journey %s has no activity %q", sel.JourneyID, sel.ActivityID)
	}
	ch, name, err := activityTemplate(activity)
	if err != nil {
		return nil, fmt.Errorf("journey %s activity %s: %w", sel.JourneyID, sel.ActivityID, err)
	}
	return r.templateContent(ctx, ch, name)
}

// templateContent fetches a named template and shapes it for its channel.
// An empty name means no template is configured.
func (r *Resolver) templateContent(ctx context.Context, ch types.Channel, name string) ([]types.ContentPiece, error) {
	if name == "" {
		return nil, nil
	}
	tpl, err := r.lookup.GetTemplate(ctx, ch, name)
	if err != nil {
		return nil, fmt.Errorf("get %s template %s: %w", ch, name, err)
	}
	return templatePieces(ch, tpl)
}
