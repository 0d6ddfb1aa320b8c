// Package transcript models meeting transcripts and their on-disk form: a
// markdown document with a key: value front matter block followed by the
// raw transcript body.
package transcript

import (
	"strings"
)

const frontMatterDelimiter = "---"

// Field is a single front matter entry. Order is preserved on round trips.
type Field struct {
	Key   string
	Value string
}

// Document is a transcript file split into front matter and body.
type Document struct {
	Fields []Field
	Body   string
}

// ParseDocument splits content into front matter fields and body. Content
// without a leading front matter block parses as a body-only document.
func ParseDocument(content string) Document {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontMatterDelimiter {
		return Document{Body: normalized}
	}

	var fields []Field
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == frontMatterDelimiter {
			body := strings.Join(lines[i+1:], "\n")
			body = strings.TrimPrefix(body, "\n")
			return Document{Fields: fields, Body: body}
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields = append(fields, Field{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}

	// Unterminated block: treat the whole content as body.
	return Document{Body: normalized}
}

// HasFrontMatter reports whether content begins with a front matter block.
func HasFrontMatter(content string) bool {
	trimmed := strings.TrimLeft(content, "\uFEFF")
	return strings.HasPrefix(trimmed, frontMatterDelimiter+"\n") ||
		strings.TrimSpace(trimmed) == frontMatterDelimiter
}

// Get returns the first value for key, or "" when absent.
func (d *Document) Get(key string) string {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Set replaces the value of key, appending the field when absent. Empty
// values remove the field.
func (d *Document) Set(key, value string) {
	if value == "" {
		for i, f := range d.Fields {
			if f.Key == key {
				d.Fields = append(d.Fields[:i], d.Fields[i+1:]...)
				return
			}
		}
		return
	}
	for i, f := range d.Fields {
		if f.Key == key {
			d.Fields[i].Value = value
			return
		}
	}
	d.Fields = append(d.Fields, Field{Key: key, Value: value})
}

// Render serializes the document back to file form. A document without
// fields renders as its bare body.
func (d *Document) Render() string {
	if len(d.Fields) == 0 {
		return d.Body
	}
	var b strings.Builder
	b.WriteString(frontMatterDelimiter)
	b.WriteByte('\n')
	for _, f := range d.Fields {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	b.WriteString(frontMatterDelimiter)
	b.WriteString("\n\n")
	b.WriteString(d.Body)
	return b.String()
}
