package airtable

import (
	"strings"
)

// Fields reads typed values out of a decoded record. Missing or mistyped
// fields read as zero values.
type Fields map[string]any

func (f Fields) String(name string) string {
	switch v := f[name].(type) {
	case string:
		return v
	case []any:
		// Lookup fields arrive as one-element arrays.
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func (f Fields) Bool(name string) bool {
	b, _ := f[name].(bool)
	return b
}

func (f Fields) Int(name string) int64 {
	switch v := f[name].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

// Strings reads a multi-select, link or comma-separated text field.
func (f Fields) Strings(name string) []string {
	switch v := f[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// First returns the first linked record id of name.
func (f Fields) First(name string) string {
	if ids := f.Strings(name); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// Attachment is one element of an attachment field.
type Attachment struct {
	ID       string
	URL      string
	Filename string
	Type     string
}

func (f Fields) Attachments(name string) []Attachment {
	raw, _ := f[name].([]any)
	out := make([]Attachment, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		a := Fields(m)
		out = append(out, Attachment{
			ID:       a.String("id"),
			URL:      a.String("url"),
			Filename: a.String("filename"),
			Type:     a.String("type"),
		})
	}
	return out
}

// Link builds a link field value.
func Link(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

// AttachmentURL builds an attachment field value Airtable will fetch from url.
func AttachmentURL(url, filename string) []map[string]string {
	a := map[string]string{"url": url}
	if filename != "" {
		a["filename"] = filename
	}
	return []map[string]string{a}
}
