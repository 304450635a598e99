package importer

import (
	"strings"

	"github.com/jsalverda/disentangle/internal/domain"
)

// Canonical turn fields every chat file must provide, directly or through
// a known alias.
const (
	FieldTurnID  = "turn_id"
	FieldUserID  = "user_id"
	FieldContent = "content"
	FieldReplyTo = "reply_to"
	FieldThread  = "thread"
)

// fieldVariations lists accepted source column names per canonical field,
// matched case-insensitively after trimming. The canonical name itself is
// always accepted first.
var fieldVariations = map[string][]string{
	FieldTurnID:  {"turn_id", "turn id", "turnid", "turn", "message_id", "msg_id", "id"},
	FieldUserID:  {"user_id", "user id", "userid", "user", "speaker", "speaker_id", "author", "sender"},
	FieldContent: {"content", "turn_text", "text", "message", "turn_content", "msg_text", "message_text", "body"},
	FieldReplyTo: {"reply_to", "reply_to_turn", "replyto", "in_reply_to", "parent_id", "reply", "parent"},
}

var requiredFields = []string{FieldTurnID, FieldUserID, FieldContent, FieldReplyTo}

// ResolveMapping binds canonical fields to source columns. Caller overrides
// win over alias matching; the thread column defaults to the first header
// containing "thread". Override keys outside the canonical set are kept as
// extra metadata columns.
func ResolveMapping(headers []string, overrides map[string]string) (domain.ColumnMapping, error) {
	index := headerIndex(headers)

	resolve := func(field string) string {
		if override, ok := overrideFor(overrides, field); ok {
			if actual, found := index[normalizeHeader(override)]; found {
				return actual
			}
			return ""
		}
		for _, candidate := range fieldVariations[field] {
			if actual, found := index[candidate]; found {
				return actual
			}
		}
		return ""
	}

	mapping := domain.ColumnMapping{
		TurnID:  resolve(FieldTurnID),
		UserID:  resolve(FieldUserID),
		Content: resolve(FieldContent),
		ReplyTo: resolve(FieldReplyTo),
	}

	threadOverride, hasOverride := overrideFor(overrides, FieldThread)
	if !hasOverride {
		threadOverride, hasOverride = overrideFor(overrides, "thread_id")
	}
	if hasOverride {
		if actual, found := index[normalizeHeader(threadOverride)]; found {
			mapping.Thread = actual
		}
	}
	if mapping.Thread == "" {
		for _, header := range headers {
			if strings.Contains(strings.ToLower(header), "thread") {
				mapping.Thread = header
				break
			}
		}
	}

	for key, source := range overrides {
		if isCanonicalKey(key) {
			continue
		}
		if actual, found := index[normalizeHeader(source)]; found {
			if mapping.Metadata == nil {
				mapping.Metadata = make(map[string]string)
			}
			mapping.Metadata[key] = actual
		}
	}

	var missing []string
	for _, field := range requiredFields {
		if resolvedField(mapping, field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return domain.ColumnMapping{}, &SchemaError{Missing: missing, Available: headers}
	}
	return mapping, nil
}

func resolvedField(mapping domain.ColumnMapping, field string) string {
	switch field {
	case FieldTurnID:
		return mapping.TurnID
	case FieldUserID:
		return mapping.UserID
	case FieldContent:
		return mapping.Content
	case FieldReplyTo:
		return mapping.ReplyTo
	case FieldThread:
		return mapping.Thread
	}
	return ""
}

func overrideFor(overrides map[string]string, field string) (string, bool) {
	if overrides == nil {
		return "", false
	}
	value, ok := overrides[field]
	return value, ok
}

func isCanonicalKey(key string) bool {
	switch key {
	case FieldTurnID, FieldUserID, FieldContent, FieldReplyTo, FieldThread, "thread_id":
		return true
	}
	return false
}

func headerIndex(headers []string) map[string]string {
	index := make(map[string]string, len(headers))
	for _, header := range headers {
		key := normalizeHeader(header)
		if _, exists := index[key]; !exists {
			index[key] = header
		}
	}
	return index
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}
