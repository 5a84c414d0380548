package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Content is the shape of a payload's `content` member. Upstream sends
// either rendered HTML as a string or a structured editor document as an
// object; everything else is passed through untouched so the final decode
// reports it.
type Content struct {
	Shape Shape
	Raw   json.RawMessage
}

type Shape int

const (
	ShapeAbsent Shape = iota
	ShapeText
	ShapeDocument
	ShapeOther
)

func (s Shape) String() string {
	switch s {
	case ShapeAbsent:
		return "absent"
	case ShapeText:
		return "text"
	case ShapeDocument:
		return "document"
	default:
		return "other"
	}
}

// ClassifyContent inspects the `content` member of a JSON object payload.
func ClassifyContent(payload json.RawMessage) Content {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return Content{Shape: ShapeAbsent}
	}
	raw, ok := obj["content"]
	if !ok {
		return Content{Shape: ShapeAbsent}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Content{Shape: ShapeOther, Raw: raw}
	}
	switch trimmed[0] {
	case '"':
		return Content{Shape: ShapeText, Raw: raw}
	case '{':
		return Content{Shape: ShapeDocument, Raw: raw}
	default:
		return Content{Shape: ShapeOther, Raw: raw}
	}
}

// Text returns the flat string form of the content: the decoded string for
// text, the compact JSON serialization for a document.
func (c Content) Text() (string, error) {
	switch c.Shape {
	case ShapeText:
		var s string
		if err := json.Unmarshal(c.Raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case ShapeDocument:
		var buf bytes.Buffer
		if err := json.Compact(&buf, c.Raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("content has no text form (%s)", c.Shape)
	}
}

// flattenContent rewrites a document-shaped `content` member of an object
// payload into a JSON string. Any other payload is returned as is.
func flattenContent(payload json.RawMessage) (json.RawMessage, error) {
	content := ClassifyContent(payload)
	if content.Shape != ShapeDocument {
		return payload, nil
	}

	text, err := content.Text()
	if err != nil {
		return payload, fmt.Errorf("serialize content: %w", err)
	}
	encoded, err := json.Marshal(text)
	if err != nil {
		return payload, fmt.Errorf("encode content: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload, err
	}
	obj["content"] = encoded
	return json.Marshal(obj)
}
