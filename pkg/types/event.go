package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent is returned when a payload cannot be interpreted as a send event.
var ErrMalformedEvent = errors.New("malformed event")

// EventType is the stream event type string, e.g. "_campaign.send".
type EventType string

const (
	EventTypeCampaignSend EventType = "_campaign.send"
	EventTypeJourneySend  EventType = "_journey.send"
)

// Archivable reports whether events of this type carry content worth archiving.
func (t EventType) Archivable() bool {
	switch t {
	case EventTypeCampaignSend, EventTypeJourneySend:
		return true
	default:
		return false
	}
}

// CampaignSelector picks the content of a campaign treatment.
type CampaignSelector struct {
	CampaignID  string
	TreatmentID string
}

// JourneySelector picks the content of a journey activity.
type JourneySelector struct {
	JourneyID  string
	ActivityID string
}

// Selector identifies where an event's content lives. Exactly one of
// Campaign or Journey is set.
type Selector struct {
	Campaign *CampaignSelector
	Journey  *JourneySelector
}

// ForCampaign builds a campaign selector.
func ForCampaign(campaignID, treatmentID string) Selector {
	return Selector{Campaign: &CampaignSelector{CampaignID: campaignID, TreatmentID: treatmentID}}
}

// ForJourney builds a journey selector.
func ForJourney(journeyID, activityID string) Selector {
	return Selector{Journey: &JourneySelector{JourneyID: journeyID, ActivityID: activityID}}
}

// Validate enforces that exactly one side of the selector is populated.
func (s Selector) Validate() error {
	switch {
	case s.Campaign != nil && s.Journey != nil:
		return fmt.Errorf("%w: both campaign and journey selected", ErrMalformedEvent)
	case s.Campaign != nil:
		if s.Campaign.CampaignID == "" {
			return fmt.Errorf("%w: empty campaign id", ErrMalformedEvent)
		}
		return nil
	case s.Journey != nil:
		if s.Journey.JourneyID == "" {
			return fmt.Errorf("%w: empty journey id", ErrMalformedEvent)
		}
		return nil
	default:
		return fmt.Errorf("%w: neither campaign nor journey selected", ErrMalformedEvent)
	}
}

// CampaignID returns the campaign id or "" for journey selectors.
func (s Selector) CampaignID() string {
	if s.Campaign == nil {
		return ""
	}
	return s.Campaign.CampaignID
}

// JourneyID returns the journey id or "" for campaign selectors.
func (s Selector) JourneyID() string {
	if s.Journey == nil {
		return ""
	}
	return s.Journey.JourneyID
}

// Event is a single send action taken from the stream.
type Event struct {
	EventType     EventType
	ApplicationID string
	// EventTimestamp is in epoch milliseconds.
	EventTimestamp int64
	EndpointID     string
	Endpoint       map[string]any
	Selector       Selector
	// ArchiveLocation is the pre-computed destination, if the router set one.
	ArchiveLocation string
}

// EventRecord is the JSON shape of a stream event.
type EventRecord struct {
	EventType      string `json:"event_type"`
	EventTimestamp int64  `json:"event_timestamp"`
	Application    struct {
		AppID string `json:"app_id"`
	} `json:"application"`
	Attributes struct {
		CampaignID        string `json:"campaign_id,omitempty"`
		TreatmentID       string `json:"treatment_id,omitempty"`
		JourneyID         string `json:"journey_id,omitempty"`
		JourneyActivityID string `json:"journey_activity_id,omitempty"`
	} `json:"attributes"`
	Client struct {
		ClientID string `json:"client_id"`
	} `json:"client"`
	ClientContext struct {
		Custom struct {
			// Endpoint is the recipient's endpoint document, itself JSON encoded.
			Endpoint               string `json:"endpoint"`
			MessageArchiveLocation string `json:"message_archive_location,omitempty"`
		} `json:"custom"`
	} `json:"client_context"`
}

// ParseEvent decodes a JSON stream event into an Event.
func ParseEvent(data []byte) (*Event, error) {
	var rec EventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return rec.ToEvent()
}

// ToEvent validates the record and converts it to an Event.
func (r *EventRecord) ToEvent() (*Event, error) {
	endpoint := map[string]any{}
	if raw := r.ClientContext.Custom.Endpoint; raw != "" {
		if err := json.Unmarshal([]byte(raw), &endpoint); err != nil {
			return nil, fmt.Errorf("%w: endpoint: %v", ErrMalformedEvent, err)
		}
	}

	var sel Selector
	if r.Attributes.CampaignID != "" {
		sel.Campaign = &CampaignSelector{CampaignID: r.Attributes.CampaignID, TreatmentID: r.Attributes.TreatmentID}
	}
	if r.Attributes.JourneyID != "" {
		sel.Journey = &JourneySelector{JourneyID: r.Attributes.JourneyID, ActivityID: r.Attributes.JourneyActivityID}
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	return &Event{
		EventType:       EventType(r.EventType),
		ApplicationID:   r.Application.AppID,
		EventTimestamp:  r.EventTimestamp,
		EndpointID:      r.Client.ClientID,
		Endpoint:        endpoint,
		Selector:        sel,
		ArchiveLocation: r.ClientContext.Custom.MessageArchiveLocation,
	}, nil
}
