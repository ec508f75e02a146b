package runner_test

import (
	"testing"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    domain.ConversationRecord
		wantErr bool
	}{
		{
			name: "canonical transcript",
			body: `{"date":"2024-05-01","transcript":[{"role":"user","text":"動物園に行った","timestamp":1714550400000},{"role":"model","text":"何を見たの？","timestamp":1714550401000}],"notificationTarget":"https://hooks.example/1"}`,
			want: domain.ConversationRecord{
				Date: "2024-05-01",
				Transcript: []domain.TranscriptEntry{
					{Role: domain.RoleUser, Text: "動物園に行った", Timestamp: 1714550400000},
					{Role: domain.RoleModel, Text: "何を見たの？", Timestamp: 1714550401000},
				},
				NotificationTarget: "https://hooks.example/1",
			},
		},
		{
			name: "transcript as JSON string",
			body: `{"date":"2024-05-01","conversation_transcript":"[{\"role\":\"user\",\"text\":\"海で泳いだ\",\"timestamp\":1}]"}`,
			want: domain.ConversationRecord{
				Date:       "2024-05-01",
				Transcript: []domain.TranscriptEntry{{Role: domain.RoleUser, Text: "海で泳いだ", Timestamp: 1}},
			},
		},
		{
			name: "legacy flat shape",
			body: `{"date":"2024-05-01","location":"公園","activity":"すべり台","feeling":"たのしい","summary":"","discord_webhook_url":"https://hooks.example/2"}`,
			want: domain.ConversationRecord{
				Date: "2024-05-01",
				Transcript: []domain.TranscriptEntry{
					{Role: domain.RoleUser, Text: "場所: 公園\nしたこと: すべり台\n気持ち: たのしい"},
				},
				NotificationTarget: "https://hooks.example/2",
			},
		},
		{
			name: "notificationTarget wins over alias",
			body: `{"date":"2024-05-01","transcript":[{"role":"user","text":"x"}],"notificationTarget":"a","discord_webhook_url":"b"}`,
			want: domain.ConversationRecord{
				Date:               "2024-05-01",
				Transcript:         []domain.TranscriptEntry{{Role: domain.RoleUser, Text: "x"}},
				NotificationTarget: "a",
			},
		},
		{name: "missing date", body: `{"transcript":[{"role":"user","text":"x"}]}`, wantErr: true},
		{name: "no content", body: `{"date":"2024-05-01"}`, wantErr: true},
		{name: "unknown role", body: `{"date":"2024-05-01","transcript":[{"role":"narrator","text":"x"}]}`, wantErr: true},
		{name: "broken transcript string", body: `{"date":"2024-05-01","conversation_transcript":"[{"}`, wantErr: true},
		{name: "not JSON", body: `date=2024-05-01`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runner.DecodeRecordJSON([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRecord_WeakTypes(t *testing.T) {
	got, err := runner.DecodeRecord(map[string]any{
		"date": "2024-05-01",
		"transcript": []any{
			map[string]any{"role": "user", "text": "雨だった", "timestamp": "42"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Transcript[0].Timestamp)
}

func TestDecodeRecord_RejectsInvalidUTF8(t *testing.T) {
	_, err := runner.DecodeRecord(map[string]any{
		"date":       "2024-05-01",
		"transcript": []any{map[string]any{"role": "user", "text": "bad \xff"}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}
