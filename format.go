package model

import (
	"errors"
	"fmt"
	"strings"
)

// formatErrorMarker replaces tokens that fail to render inside multi-token
// templates.
const formatErrorMarker = "<error>"

type formatToken struct {
	literal string
	path    string
	spec    string
}

// formatTemplate is a tokenized display template: literal spans interleaved
// with [path:spec] tokens. Templates tokenize once per (type, template) and
// cache both outcomes.
type formatTemplate struct {
	raw    string
	tokens []formatToken
	single bool
}

type formatEntry struct {
	tmpl *formatTemplate
	err  error
}

func (t *Type) formatTemplate(raw string) (*formatTemplate, error) {
	if cache := t.registry.cfg.formatCache; cache != nil {
		key := t.name + "\x00" + raw
		if v, ok := cache.Get(key); ok {
			entry := v.(*formatEntry)
			return entry.tmpl, entry.err
		}
		tmpl, err := parseFormatTemplate(raw)
		cache.Set(key, &formatEntry{tmpl: tmpl, err: err})
		return tmpl, err
	}
	if t.formats == nil {
		t.formats = map[string]*formatEntry{}
	}
	if entry, ok := t.formats[raw]; ok {
		return entry.tmpl, entry.err
	}
	tmpl, err := parseFormatTemplate(raw)
	t.formats[raw] = &formatEntry{tmpl: tmpl, err: err}
	return tmpl, err
}

// parseFormatTemplate splits raw into literal and token spans. Backslash
// escapes \[, \] and \\ produce literal characters; other backslashes pass
// through unchanged.
func parseFormatTemplate(raw string) (*formatTemplate, error) {
	tmpl := &formatTemplate{raw: raw}
	var literal strings.Builder
	flushLiteral := func() {
		if literal.Len() == 0 {
			return
		}
		tmpl.tokens = append(tmpl.tokens, formatToken{literal: literal.String()})
		literal.Reset()
	}

	i := 0
	for i < len(raw) {
		c := raw[i]
		switch c {
		case '\\':
			if i+1 < len(raw) {
				next := raw[i+1]
				if next == '[' || next == ']' || next == '\\' {
					literal.WriteByte(next)
					i += 2
					continue
				}
			}
			literal.WriteByte(c)
			i++
		case '[':
			end, body, err := scanToken(raw, i+1)
			if err != nil {
				return nil, err
			}
			flushLiteral()
			path, spec := body, ""
			if colon := strings.IndexByte(body, ':'); colon >= 0 {
				path, spec = body[:colon], body[colon+1:]
			}
			if path == "" {
				return nil, fmt.Errorf("model: format %q: token without path", raw)
			}
			tmpl.tokens = append(tmpl.tokens, formatToken{path: path, spec: spec})
			i = end
		case ']':
			return nil, fmt.Errorf("model: format %q: unbalanced ']'", raw)
		default:
			literal.WriteByte(c)
			i++
		}
	}
	flushLiteral()

	if len(tmpl.tokens) == 1 && tmpl.tokens[0].path != "" {
		tmpl.single = true
	}
	return tmpl, nil
}

// scanToken reads a token body starting after '[' and returns the index past
// the closing ']'.
func scanToken(raw string, start int) (end int, body string, err error) {
	var b strings.Builder
	i := start
	for i < len(raw) {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			next := raw[i+1]
			if next == '[' || next == ']' || next == '\\' {
				b.WriteByte(next)
				i += 2
				continue
			}
		}
		if c == ']' {
			return i + 1, b.String(), nil
		}
		b.WriteByte(c)
		i++
	}
	return 0, "", fmt.Errorf("model: format %q: unterminated token", raw)
}

// Format renders the instance through its type's declared format template.
// Types without a template render as the instance id.
func (i *Instance) Format() (string, error) {
	if i.typ.format == "" {
		return i.id, nil
	}
	return i.FormatWith(i.typ.format)
}

// FormatWith renders the instance through an explicit template. A template
// that is exactly one token propagates the token's error; templates mixing
// literals and tokens render failing tokens as an error marker and return the
// rendered text together with the joined errors, so callers can use either.
func (i *Instance) FormatWith(template string) (string, error) {
	tmpl, err := i.typ.formatTemplate(template)
	if err != nil {
		return "", err
	}
	return tmpl.render(i)
}

func (ft *formatTemplate) render(inst *Instance) (string, error) {
	if ft.single {
		return renderFormatToken(inst, ft.tokens[0])
	}
	var b strings.Builder
	var errs []error
	for _, tok := range ft.tokens {
		if tok.path == "" {
			b.WriteString(tok.literal)
			continue
		}
		rendered, err := renderFormatToken(inst, tok)
		if err != nil {
			errs = append(errs, err)
			b.WriteString(formatErrorMarker)
			continue
		}
		b.WriteString(rendered)
	}
	return b.String(), errors.Join(errs...)
}

// renderFormatToken resolves the token path from inst and formats the leaf. A
// value leaf formats through the property source with the token's opaque spec
// string; a reference leaf renders each target's own format template.
// Multiple resolved instances join with ", ".
func renderFormatToken(inst *Instance, tok formatToken) (string, error) {
	path, err := inst.typ.Path(tok.path)
	if err != nil {
		return "", err
	}
	if len(path.leaves) > 0 {
		return "", fmt.Errorf("model: format token %q: branch paths cannot be formatted", tok.path)
	}
	resolved, err := path.Instances(inst)
	if err != nil {
		return "", err
	}
	leaf := path.chain[len(path.chain)-1]

	var parts []string
	switch prop := leaf.property.(type) {
	case *ValueProperty:
		for _, owner := range resolved {
			rendered, err := owner.Formatted(prop, tok.spec)
			if err != nil {
				return "", err
			}
			parts = append(parts, rendered)
		}
	case *ReferenceProperty:
		for _, target := range resolved {
			rendered, err := target.Format()
			if err != nil {
				return "", err
			}
			parts = append(parts, rendered)
		}
	}
	return strings.Join(parts, ", "), nil
}
