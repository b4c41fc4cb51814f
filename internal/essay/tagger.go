package essay

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/dgallion1/essayist/internal/dom"
	"github.com/dgallion1/essayist/internal/markup"
)

// Text under these elements is never scanned for mentions. Spans inside
// links would nest interactive content, and audio holds only fallback text.
var untaggable = map[string]bool{
	"style": true, "script": true, "head": true, "title": true, "meta": true,
	"code": true, "pre": true, "a": true, "audio": true,
}

type pattern struct {
	text   string
	re     *regexp.Regexp
	record *markup.Record
}

type mention struct {
	start, end int
	record     *markup.Record
}

// matcher finds label and alias mentions of known records in text.
type matcher struct {
	patterns []pattern
}

// newMatcher builds patterns from entity and map-layer labels and aliases.
// When two records share a string the last in document order keeps it.
func newMatcher(records *markup.Collection) *matcher {
	seen := map[string]int{}
	var patterns []pattern
	add := func(s string, r *markup.Record) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if i, ok := seen[key]; ok {
			patterns[i].record = r
			return
		}
		seen[key] = len(patterns)
		patterns = append(patterns, pattern{
			text:   s,
			re:     regexp.MustCompile(`(?i)` + regexp.QuoteMeta(s)),
			record: r,
		})
	}
	for _, r := range records.ByTag(markup.TagEntity, markup.TagMapLayer) {
		add(r.Label, r)
		for _, a := range r.Aliases {
			add(a, r)
		}
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return len(patterns[i].text) > len(patterns[j].text)
	})
	return &matcher{patterns: patterns}
}

// find returns non-overlapping mentions ordered by position. Longer patterns
// claim their spans first; a candidate touching an accepted span is rejected.
func (m *matcher) find(s string) []mention {
	var accepted []mention
	for _, p := range m.patterns {
		for _, loc := range p.re.FindAllStringIndex(s, -1) {
			start, end := loc[0], loc[1]
			if !atBoundary(s, start, end) {
				continue
			}
			overlaps := false
			for _, a := range accepted {
				if start <= a.end && end >= a.start {
					overlaps = true
					break
				}
			}
			if !overlaps {
				accepted = append(accepted, mention{start: start, end: end, record: p.record})
			}
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atBoundary reports whether s[start:end] is not glued to word characters.
func atBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// tag wraps qualifying plain-text mentions of known records in inferred
// entity spans. Blocks are visited in document order and each record is
// tagged at most once per block.
func (t *Transformer) tag(_ context.Context, doc *document) error {
	m := newMatcher(doc.records)
	if len(m.patterns) == 0 {
		return nil
	}

	var texts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (untaggable[n.Data] || doc.explicit[n] || dom.HasClass(n, "entity")) {
			return
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			texts = append(texts, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.article)

	inferred := 0
	for _, n := range texts {
		ids := contextIDs(n)
		if len(ids) == 0 {
			continue
		}
		mentions := m.find(n.Data)
		if len(mentions) == 0 {
			continue
		}
		inferred += rebuildText(n, mentions, ids)
	}
	doc.log.Debug("mentions tagged", "patterns", len(m.patterns), "inferred", inferred)
	return nil
}

// contextIDs lists the ids of enclosing paragraphs, sections and the
// article, innermost first.
func contextIDs(n *html.Node) []string {
	var ids []string
	for p := n.Parent; p != nil; p = p.Parent {
		if dom.IsElement(p, "p", "section", "article") {
			if id, ok := dom.Attr(p, "id"); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// shouldTag applies the scope rules for a mention whose enclosing block ids
// are ctx, innermost first. A record is tagged at most once per block.
func shouldTag(r *markup.Record, ctx []string) bool {
	if len(ctx) == 0 || r.IsFoundIn(ctx[0]) {
		return false
	}
	switch r.Scope {
	case markup.ScopeGlobal:
		return true
	case markup.ScopeElement:
		return false
	}
	return r.TaggedInAny(ctx)
}

// rebuildText replaces n with text segments and inferred spans. It returns
// the number of spans created.
func rebuildText(n *html.Node, mentions []mention, ctx []string) int {
	block := ctx[0]
	s := n.Data
	parent := n.Parent
	created := 0
	cursor := 0
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			parent.InsertBefore(dom.Text(buf.String()), n)
			buf.Reset()
		}
	}
	for _, m := range mentions {
		buf.WriteString(s[cursor:m.start])
		matched := s[m.start:m.end]
		cursor = m.end
		if !shouldTag(m.record, ctx) {
			buf.WriteString(matched)
			continue
		}
		flush()
		span := dom.Element("span",
			"title", m.record.Title(),
			"class", strings.TrimSpace("entity inferred "+m.record.Category),
			"data-eid", m.record.DataEID(),
		)
		span.AppendChild(dom.Text(matched))
		parent.InsertBefore(span, n)
		m.record.AddFoundIn(block)
		created++
	}
	if created == 0 {
		return 0
	}
	buf.WriteString(s[cursor:])
	flush()
	parent.RemoveChild(n)
	return created
}
