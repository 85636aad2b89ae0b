package content

import "github.com/illmade-knight/go-message-archive/pkg/types"

// BaseTreatmentID selects the campaign's own treatment rather than an additional one.
const BaseTreatmentID = "0"

// Campaign is a campaign definition as returned by the content service.
// The base treatment's configuration lives on the campaign itself.
type Campaign struct {
	ID                    string                `firestore:"Id"`
	Name                  string                `firestore:"Name"`
	TemplateConfiguration TemplateConfiguration `firestore:"TemplateConfiguration"`
	MessageConfiguration  MessageConfiguration  `firestore:"MessageConfiguration"`
	AdditionalTreatments  []Treatment           `firestore:"AdditionalTreatments"`
}

// BaseTreatment returns the campaign's own configuration as a Treatment.
func (c *Campaign) BaseTreatment() *Treatment {
	return &Treatment{
		ID:                    BaseTreatmentID,
		TemplateConfiguration: c.TemplateConfiguration,
		MessageConfiguration:  c.MessageConfiguration,
	}
}

// Treatment is one content variant of a campaign.
type Treatment struct {
	ID                    string                `firestore:"Id"`
	TemplateConfiguration TemplateConfiguration `firestore:"TemplateConfiguration"`
	MessageConfiguration  MessageConfiguration  `firestore:"MessageConfiguration"`
}

// TemplateRef names a stored template.
type TemplateRef struct {
	Name string `firestore:"Name"`
}

// TemplateConfiguration links a treatment to stored templates, one per channel.
type TemplateConfiguration struct {
	EmailTemplate *TemplateRef `firestore:"EmailTemplate"`
	PushTemplate  *TemplateRef `firestore:"PushTemplate"`
	SMSTemplate   *TemplateRef `firestore:"SMSTemplate"`
	VoiceTemplate *TemplateRef `firestore:"VoiceTemplate"`
}

// ref returns the template reference configured for a channel, or nil.
func (tc TemplateConfiguration) ref(ch types.Channel) *TemplateRef {
	switch ch {
	case types.ChannelEmail:
		return tc.EmailTemplate
	case types.ChannelPush:
		return tc.PushTemplate
	case types.ChannelSMS:
		return tc.SMSTemplate
	case types.ChannelVoice:
		return tc.VoiceTemplate
	default:
		return nil
	}
}

// InlineMessage is content written directly into a treatment.
type InlineMessage struct {
	Title      string `firestore:"Title"`
	Body       string `firestore:"Body"`
	HTMLBody   string `firestore:"HtmlBody"`
	RawContent string `firestore:"RawContent"`
}

// MessageConfiguration holds inline content per delivery platform.
type MessageConfiguration struct {
	ADMMessage     *InlineMessage `firestore:"ADMMessage"`
	APNSMessage    *InlineMessage `firestore:"APNSMessage"`
	BaiduMessage   *InlineMessage `firestore:"BaiduMessage"`
	DefaultMessage *InlineMessage `firestore:"DefaultMessage"`
	EmailMessage   *InlineMessage `firestore:"EmailMessage"`
	GCMMessage     *InlineMessage `firestore:"GCMMessage"`
	SMSMessage     *InlineMessage `firestore:"SMSMessage"`
}

type inlineEntry struct {
	channel types.Channel
	message *InlineMessage
}

// entries lists the configured platforms in a fixed order with the channel each maps to.
func (mc MessageConfiguration) entries() []inlineEntry {
	return []inlineEntry{
		{types.ChannelPush, mc.ADMMessage},
		{types.ChannelPush, mc.APNSMessage},
		{types.ChannelPush, mc.BaiduMessage},
		{types.ChannelPush, mc.DefaultMessage},
		{types.ChannelEmail, mc.EmailMessage},
		{types.ChannelPush, mc.GCMMessage},
		{types.ChannelSMS, mc.SMSMessage},
	}
}

// Journey is a journey definition. Activities are keyed by activity id.
type Journey struct {
	ID         string              `firestore:"Id"`
	Name       string              `firestore:"Name"`
	Activities map[string]Activity `firestore:"Activities"`
}

// ActivityTemplate names the template a journey activity sends.
type ActivityTemplate struct {
	TemplateName string `firestore:"TemplateName"`
}

// Activity is a journey step. Message activities set exactly one channel.
type Activity struct {
	Email *ActivityTemplate `firestore:"EMAIL"`
	SMS   *ActivityTemplate `firestore:"SMS"`
	Push  *ActivityTemplate `firestore:"PUSH"`
	Voice *ActivityTemplate `firestore:"VOICE"`
}

// PushMessage is the content of one push platform within a push template.
type PushMessage struct {
	Title      string `firestore:"Title"`
	Body       string `firestore:"Body"`
	RawContent string `firestore:"RawContent"`
}

// Template is a stored message template. Which fields are used depends on
// the channel it was fetched for.
type Template struct {
	Name string `firestore:"TemplateName"`

	// Email.
	Subject  string `firestore:"Subject"`
	HTMLPart string `firestore:"HtmlPart"`
	TextPart string `firestore:"TextPart"`

	// SMS and voice.
	Body string `firestore:"Body"`

	// Push, per platform.
	ADM     *PushMessage `firestore:"ADM"`
	APNS    *PushMessage `firestore:"APNS"`
	Baidu   *PushMessage `firestore:"Baidu"`
	Default *PushMessage `firestore:"Default"`
	GCM     *PushMessage `firestore:"GCM"`

	DefaultSubstitutions string `firestore:"DefaultSubstitutions"`
}

func (t *Template) pushPlatforms() []*PushMessage {
	return []*PushMessage{t.ADM, t.APNS, t.Baidu, t.Default, t.GCM}
}
