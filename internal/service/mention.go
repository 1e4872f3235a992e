package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"workroom/internal/models"
)

// ParsedMention is one mention token extracted from message content, before
// any rows are written. TargetID is nil when the token named an entity that
// does not exist (unresolvable client names keep their raw text only).
type ParsedMention struct {
	Kind     models.MentionKind
	TargetID *uint
	RawText  string
}

// Typed mention tokens carry an explicit entity kind. Numeric targets are
// resolved inline; client mentions reference the client space by name, so an
// unresolved name falls back to a single-token capture.
var (
	typedEntityRe = regexp.MustCompile(`^@(task|flow|board|invoice):(\d+)`)
	clientNameRe  = regexp.MustCompile(`^@client:([A-Za-z0-9][\w.-]*)`)
)

const clientPrefix = "@client:"

var typedKinds = map[string]models.MentionKind{
	"task":    models.MentionTask,
	"flow":    models.MentionFlow,
	"board":   models.MentionBoard,
	"invoice": models.MentionInvoice,
}

// nameIndex holds entity names prepared for longest-prefix matching.
type nameIndex struct {
	names   []string
	lowered map[string]uint
}

func buildNameIndex(byName map[string]uint) nameIndex {
	idx := nameIndex{
		names:   make([]string, 0, len(byName)),
		lowered: make(map[string]uint, len(byName)),
	}
	for name, id := range byName {
		lower := strings.ToLower(name)
		idx.names = append(idx.names, lower)
		idx.lowered[lower] = id
	}
	// Longest first so "Ana Lima" wins over "Ana".
	sort.Slice(idx.names, func(i, j int) bool { return len(idx.names[i]) > len(idx.names[j]) })
	return idx
}

// ParseMentions scans message content for mention tokens. displayNames maps a
// workspace member's display name to their user ID and clientNames maps a
// client-space name to its ID; bare @-mentions and @client: mentions resolve
// against them by longest match, case-insensitively. Bare tokens that match no
// member are dropped; client names can span spaces ("@client:Acme Corp") and
// unmatched ones keep a single-token raw text with no target. Duplicate
// tokens produce one mention each.
func ParseMentions(content string, displayNames, clientNames map[string]uint) []ParsedMention {
	users := buildNameIndex(displayNames)
	clients := buildNameIndex(clientNames)

	var mentions []ParsedMention
	for i := 0; i < len(content); i++ {
		if content[i] != '@' {
			continue
		}
		// An @ inside a word (emails, handles) is not a mention.
		if i > 0 && isWordByte(content[i-1]) {
			continue
		}
		rest := content[i:]

		if m := typedEntityRe.FindStringSubmatch(rest); m != nil {
			id64, err := strconv.ParseUint(m[2], 10, 32)
			if err == nil {
				id := uint(id64)
				mentions = append(mentions, ParsedMention{
					Kind:     typedKinds[m[1]],
					TargetID: &id,
					RawText:  m[0],
				})
			}
			i += len(m[0]) - 1
			continue
		}

		if strings.HasPrefix(rest, clientPrefix) {
			if name, id, ok := matchEntityName(rest[len(clientPrefix):], clients); ok {
				csID := id
				mentions = append(mentions, ParsedMention{
					Kind:     models.MentionClient,
					TargetID: &csID,
					RawText:  clientPrefix + name,
				})
				i += len(clientPrefix) + len(name) - 1
				continue
			}
			if m := clientNameRe.FindStringSubmatch(rest); m != nil {
				mentions = append(mentions, ParsedMention{
					Kind:    models.MentionClient,
					RawText: m[0],
				})
				i += len(m[0]) - 1
				continue
			}
		}

		if name, id, ok := matchEntityName(rest[1:], users); ok {
			userID := id
			mentions = append(mentions, ParsedMention{
				Kind:     models.MentionUser,
				TargetID: &userID,
				RawText:  "@" + name,
			})
			i += len(name)
		}
	}
	return mentions
}

// matchEntityName finds the longest indexed name that prefixes text and ends
// at a word boundary. Returns the matched slice of the original text so the
// raw token keeps the author's casing.
func matchEntityName(text string, idx nameIndex) (string, uint, bool) {
	lowerText := strings.ToLower(text)
	for _, name := range idx.names {
		if !strings.HasPrefix(lowerText, name) {
			continue
		}
		if len(text) > len(name) && isWordByte(text[len(name)]) {
			continue
		}
		return text[:len(name)], idx.lowered[name], true
	}
	return "", 0, false
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
