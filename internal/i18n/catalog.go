// Package i18n renders engine message tags into human-readable text.
//
// The probing engine reports machine tags plus arguments; the stored
// results keep those verbatim so translations can change without
// re-running tests. Rendering happens at read time, in the language the
// caller asked for.
package i18n

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultLanguage is the fallback when a requested language is unknown.
const DefaultLanguage = "en"

// Catalog maps language codes to per-tag message templates. Templates use
// {name} placeholders filled from the entry's argument map.
type Catalog struct {
	messages map[string]map[string]string
}

// NewCatalog returns a catalog holding the built-in languages.
func NewCatalog() *Catalog {
	return &Catalog{messages: builtinMessages}
}

// Languages returns the supported language codes, sorted.
func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.messages))
	for l := range c.messages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Supported reports whether lang resolves to a known language.
func (c *Catalog) Supported(lang string) bool {
	_, ok := c.messages[NormalizeLanguage(lang)]
	return ok
}

// Render returns the message for tag in lang, with {name} placeholders
// replaced by the given arguments. Unknown languages fall back to English;
// unknown tags fall back to the tag itself so no information is lost.
func (c *Catalog) Render(lang, tag string, args map[string]any) string {
	langMsgs, ok := c.messages[NormalizeLanguage(lang)]
	if !ok {
		langMsgs = c.messages[DefaultLanguage]
	}

	template, ok := langMsgs[tag]
	if !ok {
		// English carries the full tag set; translations may lag behind it.
		if template, ok = c.messages[DefaultLanguage][tag]; !ok {
			return tag
		}
	}

	return expand(template, args)
}

// NormalizeLanguage reduces a language tag like "en-US" or "sv_SE" to its
// primary subtag.
func NormalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if l == "" {
		return DefaultLanguage
	}
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	return l
}

func expand(template string, args map[string]any) string {
	if len(args) == 0 || !strings.Contains(template, "{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		name := rest[open+1 : open+closing]
		if v, ok := args[name]; ok {
			b.WriteString(stringify(v))
		} else {
			b.WriteString(rest[open : open+closing+1])
		}
		rest = rest[open+closing+1:]
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
