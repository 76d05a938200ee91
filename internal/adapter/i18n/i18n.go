// Package i18n looks up user-visible strings from embedded YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLocale is used when a requested locale has no catalog.
const DefaultLocale = "en"

//go:embed locales/*.yaml
var catalogFS embed.FS

// Catalog resolves keys for one locale, falling back to the default locale
// and finally to the key itself.
type Catalog struct {
	locale   string
	entries  map[string]string
	fallback map[string]string
}

// New loads the catalog for locale. Region suffixes are ignored, so "zh-CN"
// and "zh_TW" both load "zh".
func New(locale string) (*Catalog, error) {
	fallback, err := load(DefaultLocale)
	if err != nil {
		return nil, err
	}
	base := normalize(locale)
	if base == "" || base == DefaultLocale {
		return &Catalog{locale: DefaultLocale, entries: fallback, fallback: fallback}, nil
	}
	entries, err := load(base)
	if err != nil {
		return nil, err
	}
	return &Catalog{locale: base, entries: entries, fallback: fallback}, nil
}

// MustNew is New for the embedded default catalog; it falls back to English
// on any error.
func MustNew(locale string) *Catalog {
	c, err := New(locale)
	if err != nil {
		c, err = New(DefaultLocale)
		if err != nil {
			panic(err)
		}
	}
	return c
}

// Locale returns the loaded locale.
func (c *Catalog) Locale() string { return c.locale }

// T returns the entry for key with {name} placeholders substituted from
// params. Unknown keys return the key.
func (c *Catalog) T(key string, params ...map[string]any) string {
	s, ok := c.entries[key]
	if !ok {
		s, ok = c.fallback[key]
	}
	if !ok {
		s = key
	}
	for _, p := range params {
		s = substitute(s, p)
	}
	return s
}

// Locales lists the embedded catalogs.
func Locales() []string {
	files, err := catalogFS.ReadDir("locales")
	if err != nil {
		return nil
	}
	var out []string
	for _, f := range files {
		out = append(out, strings.TrimSuffix(f.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}

func load(locale string) (map[string]string, error) {
	data, err := catalogFS.ReadFile("locales/" + locale + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: unknown locale %q", locale)
	}
	entries := make(map[string]string)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("i18n: parse %s: %w", locale, err)
	}
	return entries, nil
}

func normalize(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_."); i >= 0 {
		locale = locale[:i]
	}
	return locale
}

func substitute(s string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(s, "{") {
		return s
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
