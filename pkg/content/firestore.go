package content

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreLookupConfig names the collections holding content definitions.
type FirestoreLookupConfig struct {
	ProjectID           string
	CampaignsCollection string
	JourneysCollection  string
	TemplatesCollection string
}

// FirestoreLookup is a LookupService backed by Firestore. Documents are keyed
// "<applicationId>:<campaignId>", "<applicationId>:<journeyId>" and
// "<CHANNEL>:<templateName>".
type FirestoreLookup struct {
	client *firestore.Client
	cfg    FirestoreLookupConfig
	logger zerolog.Logger
}

// NewFirestoreLookup creates a FirestoreLookup. The client's lifecycle is managed by the caller.
func NewFirestoreLookup(cfg FirestoreLookupConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreLookup, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CampaignsCollection == "" || cfg.JourneysCollection == "" || cfg.TemplatesCollection == "" {
		return nil, errors.New("campaign, journey and template collection names are required")
	}

	logger.Info().
		Str("project_id", cfg.ProjectID).
		Str("campaigns", cfg.CampaignsCollection).
		Str("journeys", cfg.JourneysCollection).
		Str("templates", cfg.TemplatesCollection).
		Msg("FirestoreLookup initialized.")

	return &FirestoreLookup{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "FirestoreLookup").Logger(),
	}, nil
}

// GetCampaign implements LookupService.
func (l *FirestoreLookup) GetCampaign(ctx context.Context, applicationID, campaignID string) (*Campaign, error) {
	var c Campaign
	if err := l.get(ctx, l.cfg.CampaignsCollection, applicationID+":"+campaignID, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = campaignID
	}
	return &c, nil
}

// GetJourney implements LookupService.
func (l *FirestoreLookup) GetJourney(ctx context.Context, applicationID, journeyID string) (*Journey, error) {
	var j Journey
	if err := l.get(ctx, l.cfg.JourneysCollection, applicationID+":"+journeyID, &j); err != nil {
		return nil, err
	}
	if j.ID == "" {
		j.ID = journeyID
	}
	return &j, nil
}

// GetTemplate implements LookupService.
func (l *FirestoreLookup) GetTemplate(ctx context.Context, channel types.Channel, name string) (*Template, error) {
	var t Template
	if err := l.get(ctx, l.cfg.TemplatesCollection, TemplateDocID(channel, name), &t); err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = name
	}
	return &t, nil
}

// TemplateDocID is the document id of a template in the templates collection.
func TemplateDocID(channel types.Channel, name string) string {
	return channel.String() + ":" + name
}

func (l *FirestoreLookup) get(ctx context.Context, collection, docID string, dst any) error {
	docSnap, err := l.client.Collection(collection).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			l.logger.Warn().Str("collection", collection).Str("doc_id", docID).Msg("Document not found in Firestore.")
			return fmt.Errorf("%s/%s: %w", collection, docID, ErrNotFound)
		}
		return fmt.Errorf("firestore get for %s/%s: %w", collection, docID, err)
	}
	if err := docSnap.DataTo(dst); err != nil {
		return fmt.Errorf("firestore DataTo for %s/%s: %w", collection, docID, err)
	}
	l.logger.Debug().Str("collection", collection).Str("doc_id", docID).Msg("Fetched document from Firestore.")
	return nil
}
