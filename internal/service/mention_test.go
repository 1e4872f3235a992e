package service

import (
	"testing"

	"workroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMentions(t *testing.T) {
	displayNames := map[string]uint{
		"Ana":      1,
		"Ana Lima": 2,
		"Bob":      3,
	}
	clientNames := map[string]uint{
		"Acme":      10,
		"Acme Corp": 11,
	}

	uid := func(id uint) *uint { return &id }

	tests := []struct {
		name     string
		content  string
		expected []ParsedMention
	}{
		{
			name:    "bare user mention",
			content: "hey @Bob can you check this?",
			expected: []ParsedMention{
				{Kind: models.MentionUser, TargetID: uid(3), RawText: "@Bob"},
			},
		},
		{
			name:    "longest display name wins",
			content: "@Ana Lima owns this",
			expected: []ParsedMention{
				{Kind: models.MentionUser, TargetID: uid(2), RawText: "@Ana Lima"},
			},
		},
		{
			name:    "shorter name at a word boundary",
			content: "@Ana, can you review?",
			expected: []ParsedMention{
				{Kind: models.MentionUser, TargetID: uid(1), RawText: "@Ana"},
			},
		},
		{
			name:    "case insensitive match keeps author casing",
			content: "ping @bob",
			expected: []ParsedMention{
				{Kind: models.MentionUser, TargetID: uid(3), RawText: "@bob"},
			},
		},
		{
			name:     "unknown name is dropped",
			content:  "ping @Nobody",
			expected: nil,
		},
		{
			name:     "at sign inside a word is not a mention",
			content:  "email me at ana@example.com",
			expected: nil,
		},
		{
			name:    "typed task mention",
			content: "blocked on @task:42 until Friday",
			expected: []ParsedMention{
				{Kind: models.MentionTask, TargetID: uid(42), RawText: "@task:42"},
			},
		},
		{
			name:    "typed invoice and board mentions",
			content: "@invoice:7 relates to @board:12",
			expected: []ParsedMention{
				{Kind: models.MentionInvoice, TargetID: uid(7), RawText: "@invoice:7"},
				{Kind: models.MentionBoard, TargetID: uid(12), RawText: "@board:12"},
			},
		},
		{
			name:    "unknown client mention stays unresolved",
			content: "waiting on @client:northwind to approve",
			expected: []ParsedMention{
				{Kind: models.MentionClient, TargetID: nil, RawText: "@client:northwind"},
			},
		},
		{
			name:    "multi-word client name resolves in full",
			content: "cc @client:Acme Corp please review @task:42",
			expected: []ParsedMention{
				{Kind: models.MentionClient, TargetID: uid(11), RawText: "@client:Acme Corp"},
				{Kind: models.MentionTask, TargetID: uid(42), RawText: "@task:42"},
			},
		},
		{
			name:    "shorter client name at a word boundary",
			content: "ping @client:Acme, thanks",
			expected: []ParsedMention{
				{Kind: models.MentionClient, TargetID: uid(10), RawText: "@client:Acme"},
			},
		},
		{
			name:    "client name match keeps author casing",
			content: "sync with @client:acme corp tomorrow",
			expected: []ParsedMention{
				{Kind: models.MentionClient, TargetID: uid(11), RawText: "@client:acme corp"},
			},
		},
		{
			name:    "mixed kinds in one message",
			content: "@Bob see @task:9 for @client:Acme",
			expected: []ParsedMention{
				{Kind: models.MentionUser, TargetID: uid(3), RawText: "@Bob"},
				{Kind: models.MentionTask, TargetID: uid(9), RawText: "@task:9"},
				{Kind: models.MentionClient, TargetID: uid(10), RawText: "@client:Acme"},
			},
		},
		{
			name:    "duplicate tokens produce one mention each",
			content: "@Bob @Bob",
			expected: []ParsedMention{
				{Kind: models.MentionUser, TargetID: uid(3), RawText: "@Bob"},
				{Kind: models.MentionUser, TargetID: uid(3), RawText: "@Bob"},
			},
		},
		{
			name:     "bare at sign",
			content:  "meet @ noon",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMentions(tt.content, displayNames, clientNames)
			require.Len(t, got, len(tt.expected))
			for i, want := range tt.expected {
				assert.Equal(t, want.Kind, got[i].Kind)
				assert.Equal(t, want.RawText, got[i].RawText)
				if want.TargetID == nil {
					assert.Nil(t, got[i].TargetID)
				} else {
					require.NotNil(t, got[i].TargetID)
					assert.Equal(t, *want.TargetID, *got[i].TargetID)
				}
			}
		})
	}
}
