package worklog

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// CommentKind tags the shape a worklog comment arrived in.
type CommentKind int

const (
	CommentAbsent CommentKind = iota
	CommentText
	CommentDocument
)

// Comment is a worklog comment: absent, plain text, or a rich-text
// (Atlassian Document Format) document kept as raw JSON.
type Comment struct {
	Kind CommentKind
	text string
	doc  []byte
}

// TextComment builds a plain-text comment.
func TextComment(s string) Comment {
	return Comment{Kind: CommentText, text: s}
}

// DocumentComment builds a rich-text comment from its raw JSON.
func DocumentComment(raw []byte) Comment {
	return Comment{Kind: CommentDocument, doc: append([]byte(nil), bytes.TrimSpace(raw)...)}
}

// ParseComment decodes the raw JSON value of a comment field. Null or empty
// input is an absent comment, a JSON string is plain text, and anything else
// is treated as a document.
func ParseComment(raw []byte) Comment {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Comment{}
	}
	v := gjson.ParseBytes(raw)
	switch v.Type {
	case gjson.Null:
		return Comment{}
	case gjson.String:
		return TextComment(v.Str)
	default:
		return DocumentComment(raw)
	}
}

// Text normalizes the comment to plain text.
func (c Comment) Text() string {
	switch c.Kind {
	case CommentText:
		return c.text
	case CommentDocument:
		return documentText(c.doc)
	default:
		return ""
	}
}

// documentText returns the first text node of the first content block.
// Well-formed documents without text yield "", documents with an unexpected
// structure fall back to their serialized form.
func documentText(raw []byte) string {
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return string(raw)
	}

	content := doc.Get("content")
	if !content.Exists() {
		return ""
	}
	if !content.IsArray() {
		return string(raw)
	}
	blocks := content.Array()
	if len(blocks) == 0 {
		return ""
	}
	if !blocks[0].IsObject() {
		return string(raw)
	}

	inner := blocks[0].Get("content")
	if !inner.Exists() {
		return ""
	}
	if !inner.IsArray() {
		return string(raw)
	}
	nodes := inner.Array()
	if len(nodes) == 0 {
		return ""
	}
	if !nodes[0].IsObject() {
		return string(raw)
	}

	text := nodes[0].Get("text")
	if !text.Exists() {
		return ""
	}
	if text.Type != gjson.String {
		return string(raw)
	}
	return text.Str
}

func (c Comment) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CommentText:
		return json.Marshal(c.text)
	case CommentDocument:
		if len(c.doc) == 0 {
			return []byte("null"), nil
		}
		if !gjson.ValidBytes(c.doc) {
			return json.Marshal(string(c.doc))
		}
		return c.doc, nil
	default:
		return []byte("null"), nil
	}
}

func (c *Comment) UnmarshalJSON(b []byte) error {
	*c = ParseComment(b)
	return nil
}
