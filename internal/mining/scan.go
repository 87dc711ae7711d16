package mining

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Scan runs the structural extractors over every selected file and returns
// entities, routes, forms, tables and modals.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	files, err := s.Files(ctx)
	if err != nil {
		return nil, err
	}

	c := newCollector()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p, ok := fileRoute(f.Rel); ok {
			c.addNavigableRoute(p, "file", f)
		}
		if f.IsLocale() {
			continue
		}
		content, ok := s.read(f)
		if !ok {
			continue
		}
		c.beginFile(f)
		for _, kind := range structuralKinds {
			s.apply(kind, f, content, c)
		}
		c.endFile()
	}

	r := c.result()
	s.logger.Debug("structural scan complete",
		"entities", len(r.Entities), "routes", len(r.Routes),
		"forms", len(r.Forms), "tables", len(r.Tables), "modals", len(r.Modals))
	return r, nil
}

// ScanI18n mines translation keys from code and flattens locale JSON files.
func (s *Scanner) ScanI18n(ctx context.Context) ([]I18nKey, error) {
	c, err := s.scanKind(ctx, KindI18n, func(c *collector, f SourceFile, content string) error {
		return s.flattenLocale(c, f, content)
	})
	if err != nil {
		return nil, err
	}
	return c.i18nKeys(), nil
}

// ScanAnalytics mines tracked analytics event names.
func (s *Scanner) ScanAnalytics(ctx context.Context) ([]AnalyticsEvent, error) {
	c, err := s.scanKind(ctx, KindAnalytics, nil)
	if err != nil {
		return nil, err
	}
	return c.analyticsEvents(), nil
}

// ScanFeatureFlags mines feature flag keys.
func (s *Scanner) ScanFeatureFlags(ctx context.Context) ([]FeatureFlag, error) {
	c, err := s.scanKind(ctx, KindFlag, nil)
	if err != nil {
		return nil, err
	}
	return c.featureFlags(), nil
}

// scanKind runs one row of the extractor table over the code files. Locale
// files go to onLocale when it is set.
func (s *Scanner) scanKind(ctx context.Context, kind Kind, onLocale func(*collector, SourceFile, string) error) (*collector, error) {
	files, err := s.Files(ctx)
	if err != nil {
		return nil, err
	}
	c := newCollector()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsLocale() && onLocale == nil {
			continue
		}
		content, ok := s.read(f)
		if !ok {
			continue
		}
		if f.IsLocale() {
			if err := onLocale(c, f, content); err != nil {
				return nil, err
			}
			continue
		}
		s.apply(kind, f, content, c)
	}
	return c, nil
}

// apply runs every extractor of kind over content. Each pattern yields at
// most RegexIterationCap matches per file; reaching the cap truncates that
// pattern for this file only.
func (s *Scanner) apply(kind Kind, f SourceFile, content string, c *collector) {
	limit := s.opts.RegexIterationCap
	for _, ex := range extractors[kind] {
		if ex.exts != nil && !ex.exts[f.Ext] {
			continue
		}
		matches := ex.re.FindAllStringSubmatch(content, limit)
		if len(matches) == 0 {
			continue
		}
		capped := len(matches) >= limit
		s.count(func(st *Stats) {
			st.Matches[ex.name] += len(matches)
			if capped {
				st.RegexCapHits++
			}
		})
		if capped {
			s.logger.Debug("regex iteration cap reached", "extractor", ex.name, "file", f.Rel, "cap", limit)
		}
		for _, m := range matches {
			ex.handle(c, f, m)
		}
	}
}

// flattenLocale records every string leaf of a locale document under its
// dotted key path. A malformed locale file is an error for the i18n pass.
func (s *Scanner) flattenLocale(c *collector, f SourceFile, content string) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return fmt.Errorf("parsing locale file %s: %w", f.Rel, err)
	}
	limit := s.opts.RegexIterationCap
	n := 0
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		if n >= limit {
			return
		}
		switch val := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, val[k])
			}
		case string:
			c.addI18nKey(prefix, val, f)
			n++
		}
	}
	walk("", doc)
	if n >= limit {
		s.count(func(st *Stats) { st.RegexCapHits++ })
	}
	s.count(func(st *Stats) { st.Matches["locale_json"] += n })
	return nil
}

var (
	pagesRoute     = regexp.MustCompile(`(?:^|/)pages/(.+)\.(?:tsx|jsx|ts|js|vue)$`)
	appRouterRoute = regexp.MustCompile(`(?:^|/)app/(?:(.*)/)?page\.(?:tsx|jsx|ts|js)$`)
	svelteRoute    = regexp.MustCompile(`(?:^|/)routes/(?:(.*)/)?\+page\.svelte$`)
)

// fileRoute derives a URL path from file-system routing conventions:
// Next.js/Nuxt pages/, the Next.js app router and SvelteKit routes/.
func fileRoute(rel string) (string, bool) {
	var p string
	switch {
	case pagesRoute.MatchString(rel):
		p = pagesRoute.FindStringSubmatch(rel)[1]
		if strings.HasPrefix(p, "api/") || strings.HasPrefix(p, "_") || strings.Contains(p, "/_") {
			return "", false
		}
	case appRouterRoute.MatchString(rel):
		p = appRouterRoute.FindStringSubmatch(rel)[1]
	case svelteRoute.MatchString(rel):
		p = svelteRoute.FindStringSubmatch(rel)[1]
	default:
		return "", false
	}

	var segs []string
	for _, seg := range strings.Split(p, "/") {
		switch {
		case seg == "" || seg == "index":
			continue
		case strings.HasPrefix(seg, "(") && strings.HasSuffix(seg, ")"):
			continue // route group
		case strings.HasPrefix(seg, "[...") || strings.HasPrefix(seg, "[[..."):
			segs = append(segs, ":"+strings.Trim(seg, "[].")+"*")
		case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
			segs = append(segs, ":"+strings.Trim(seg, "[]"))
		default:
			segs = append(segs, seg)
		}
	}
	return "/" + strings.Join(segs, "/"), true
}
