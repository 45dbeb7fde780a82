package market

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DocumentKind tags the variant held by a Document.
type DocumentKind int

const (
	// DocumentEmpty is the absent value; it serializes as null.
	DocumentEmpty DocumentKind = iota
	// DocumentObject is a decoded JSON object.
	DocumentObject
	// DocumentRaw is any other JSON value, kept as opaque bytes.
	DocumentRaw
)

// Document is a caller-supplied JSON value (schemas, prices, budgets,
// message payloads). The original bytes are kept for every kind and are what
// gets stored and served; objects are additionally decoded for inspection.
type Document struct {
	kind   DocumentKind
	object map[string]any
	raw    json.RawMessage
}

// ObjectDocument wraps a decoded object. A nil map yields an empty Document.
func ObjectDocument(m map[string]any) Document {
	if m == nil {
		return Document{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Document{}
	}
	return Document{kind: DocumentObject, object: m, raw: b}
}

// RawDocument wraps opaque JSON bytes. The bytes must be valid JSON.
func RawDocument(b []byte) Document {
	if len(bytes.TrimSpace(b)) == 0 {
		return Document{}
	}
	return Document{kind: DocumentRaw, raw: append(json.RawMessage(nil), b...)}
}

// ParseDocument classifies JSON bytes into a Document.
func ParseDocument(b []byte) (Document, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Document{}, nil
	}
	if !json.Valid(trimmed) {
		return Document{}, fmt.Errorf("document is not valid JSON")
	}
	if trimmed[0] == '{' {
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return Document{}, err
		}
		return Document{kind: DocumentObject, object: m, raw: append(json.RawMessage(nil), trimmed...)}, nil
	}
	return RawDocument(trimmed), nil
}

func (d Document) Kind() DocumentKind { return d.kind }

func (d Document) IsZero() bool { return d.kind == DocumentEmpty }

// IsEmptyObject reports whether d is the object {}.
func (d Document) IsEmptyObject() bool {
	return d.kind == DocumentObject && len(d.object) == 0
}

// Object returns the decoded object, if d holds one. Numbers decode as
// float64; use Bytes for exact values.
func (d Document) Object() (map[string]any, bool) {
	return d.object, d.kind == DocumentObject
}

// Bytes returns the JSON as received, or nil for an empty Document.
func (d Document) Bytes() []byte {
	if d.kind == DocumentEmpty {
		return nil
	}
	return d.raw
}

// RequireObject fails unless d is empty or an object.
func (d Document) RequireObject(field string) error {
	if d.kind == DocumentRaw {
		return InvalidInput("%s must be a JSON object", field)
	}
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	if d.kind == DocumentEmpty {
		return []byte("null"), nil
	}
	return d.raw, nil
}

func (d *Document) UnmarshalJSON(b []byte) error {
	parsed, err := ParseDocument(b)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the document as TEXT, NULL when empty.
func (d Document) Value() (driver.Value, error) {
	if d.kind == DocumentEmpty {
		return nil, nil
	}
	return string(d.Bytes()), nil
}

// Scan reads a TEXT column written by Value.
func (d *Document) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Document{}
		return nil
	case string:
		return d.UnmarshalJSON([]byte(v))
	case []byte:
		return d.UnmarshalJSON(v)
	}
	return fmt.Errorf("document: cannot scan %T", src)
}
