package runner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// requestPayload is the union of every accepted request shape.
type requestPayload struct {
	Date                   string                   `mapstructure:"date"`
	Transcript             []domain.TranscriptEntry `mapstructure:"transcript"`
	ConversationTranscript string                   `mapstructure:"conversation_transcript"`
	NotificationTarget     string                   `mapstructure:"notificationTarget"`
	DiscordWebhookURL      string                   `mapstructure:"discord_webhook_url"`

	Location string `mapstructure:"location"`
	Activity string `mapstructure:"activity"`
	Feeling  string `mapstructure:"feeling"`
	Summary  string `mapstructure:"summary"`
	JokeHint string `mapstructure:"joke_hint"`
}

func (p requestPayload) legacy() domain.LegacyRecord {
	return domain.LegacyRecord{
		Date:     strings.TrimSpace(p.Date),
		Location: p.Location,
		Activity: p.Activity,
		Feeling:  p.Feeling,
		Summary:  p.Summary,
		JokeHint: p.JokeHint,
	}
}

// DecodeRecord builds a conversation record from a generic request body.
//
// Three shapes are accepted, in order of precedence:
//   - canonical: {"date", "transcript": [{"role", "text", "timestamp"}]}
//   - web client: {"date", "conversation_transcript": "<JSON array>"}
//   - legacy flat: {"date", "location", "activity", "feeling", "summary", "joke_hint"}
//
// "discord_webhook_url" is accepted as an alias of "notificationTarget".
// The decoded record is sanitized and validated.
func DecodeRecord(raw map[string]any) (domain.ConversationRecord, error) {
	var p requestPayload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.ConversationRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}

	rec := domain.ConversationRecord{
		Date:       strings.TrimSpace(p.Date),
		Transcript: p.Transcript,
	}

	switch {
	case len(rec.Transcript) > 0:
	case strings.TrimSpace(p.ConversationTranscript) != "":
		if err := json.Unmarshal([]byte(p.ConversationTranscript), &rec.Transcript); err != nil {
			return domain.ConversationRecord{}, fmt.Errorf("%w: conversation_transcript is not a JSON array of entries: %v", domain.ErrInvalidRecord, err)
		}
	case !p.legacy().Empty():
		rec = p.legacy().ToConversation()
	}

	rec.NotificationTarget = strings.TrimSpace(p.NotificationTarget)
	if rec.NotificationTarget == "" {
		rec.NotificationTarget = strings.TrimSpace(p.DiscordWebhookURL)
	}

	rec, err = SanitizeRecord(rec)
	if err != nil {
		return domain.ConversationRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return domain.ConversationRecord{}, err
	}
	return rec, nil
}

// DecodeRecordJSON decodes a JSON request body. See DecodeRecord.
func DecodeRecordJSON(data []byte) (domain.ConversationRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ConversationRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}
	return DecodeRecord(raw)
}
