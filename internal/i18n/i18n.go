// Package i18n provides the per-locale dictionaries for user-visible text.
package i18n

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed en.toml pt.toml
var files embed.FS

// DefaultLocale is used when the requested locale has no dictionary.
const DefaultLocale = "en"

// Locales lists the supported locales.
var Locales = []string{"en", "pt"}

// Dictionary maps dotted keys ("chats.createSuccess") to text.
type Dictionary struct {
	Locale  string
	entries map[string]string
}

// Load returns the dictionary for locale, falling back to English. Keys
// missing from a non-default locale fall back to the English text.
func Load(locale string) (*Dictionary, error) {
	base, err := parse(DefaultLocale)
	if err != nil {
		return nil, err
	}
	locale = normalize(locale)
	if locale == DefaultLocale {
		return &Dictionary{Locale: DefaultLocale, entries: base}, nil
	}

	entries, err := parse(locale)
	if err != nil {
		return &Dictionary{Locale: DefaultLocale, entries: base}, nil
	}
	for k, v := range base {
		if _, ok := entries[k]; !ok {
			entries[k] = v
		}
	}
	return &Dictionary{Locale: locale, entries: entries}, nil
}

// MustLoad is Load for embedded locales, which always parse.
func MustLoad(locale string) *Dictionary {
	d, err := Load(locale)
	if err != nil {
		panic(err)
	}
	return d
}

// T returns the text for key, or key itself when unknown.
func (d *Dictionary) T(key string) string {
	if d == nil {
		return key
	}
	if v, ok := d.entries[key]; ok {
		return v
	}
	return key
}

// Has reports whether key is defined.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.entries[key]
	return ok
}

// Keys returns all keys, sorted.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalize(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	// "pt-BR", "pt_BR.UTF-8" -> "pt"
	if i := strings.IndexAny(locale, "-_."); i > 0 {
		locale = locale[:i]
	}
	for _, l := range Locales {
		if l == locale {
			return l
		}
	}
	return DefaultLocale
}

func parse(locale string) (map[string]string, error) {
	data, err := files.ReadFile(locale + ".toml")
	if err != nil {
		return nil, fmt.Errorf("reading %s dictionary: %w", locale, err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s dictionary: %w", locale, err)
	}
	out := make(map[string]string)
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		}
	}
}
