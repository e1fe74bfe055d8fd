package ticket

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TagValue is a named tag set on a ticket.
type TagValue struct {
	TagName  string `json:"tagName"`
	TagValue string `json:"tagValue"`
}

// tagCache holds the materialized form of Ticket.Tags until the next write.
type tagCache struct {
	values []TagValue
	loaded bool
}

func (c *tagCache) invalidate() {
	c.values = nil
	c.loaded = false
}

func (t *Ticket) tagValues() []TagValue {
	if !t.tagCache.loaded {
		t.tagCache.values = decodeTags(t.Tags)
		t.tagCache.loaded = true
	}
	return t.tagCache.values
}

func decodeTags(raw string) []TagValue {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []TagValue
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func encodeTags(values []TagValue) (string, error) {
	kept := make([]TagValue, 0, len(values))
	for _, v := range values {
		if v.TagValue != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return "", nil
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TagValues returns a copy of the tag values.
func (t *Ticket) TagValues() []TagValue {
	return append([]TagValue(nil), t.tagValues()...)
}

// TagValue returns the value of tagName, or "" when unset.
func (t *Ticket) TagValue(tagName string) string {
	for _, v := range t.tagValues() {
		if v.TagName == tagName {
			return v.TagValue
		}
	}
	return ""
}

// SetTagValue sets tagName. An empty value removes the tag.
func (t *Ticket) SetTagValue(tagName, tagValue string) error {
	values := t.TagValues()
	found := false
	for i := range values {
		if values[i].TagName == tagName {
			values[i].TagValue = tagValue
			found = true
			break
		}
	}
	if !found {
		values = append(values, TagValue{TagName: tagName, TagValue: tagValue})
	}
	encoded, err := encodeTags(values)
	if err != nil {
		return fmt.Errorf("ticket: encode tags: %w", err)
	}
	t.Tags = encoded
	t.tagCache.invalidate()
	t.touch()
	return nil
}

// IsTagged reports whether any tag carries a value.
func (t *Ticket) IsTagged() bool {
	for _, v := range t.tagValues() {
		if v.TagValue != "" {
			return true
		}
	}
	return false
}

// IsTaggedWith reports whether tagName carries a value.
func (t *Ticket) IsTaggedWith(tagName string) bool {
	return t.TagValue(tagName) != ""
}

// TagData renders the tags one "name: value" per line.
func (t *Ticket) TagData() string {
	var lines []string
	for _, v := range t.tagValues() {
		if v.TagValue != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", v.TagName, v.TagValue))
		}
	}
	return strings.Join(lines, "\n")
}

// ReplaceTags swaps the serialized tag list, e.g. when loading a stored ticket.
func (t *Ticket) ReplaceTags(raw string) {
	t.Tags = raw
	t.tagCache.invalidate()
}
