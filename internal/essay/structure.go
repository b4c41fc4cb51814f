package essay

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-slug"
	"golang.org/x/net/html"

	"github.com/dgallion1/essayist/internal/dom"
	"github.com/dgallion1/essayist/internal/markup"
)

// Section is one heading-delimited part of the essay. Parent is the id of
// the enclosing section, or empty at the top level.
type Section struct {
	ID     string
	Level  int
	Parent string
	Node   *html.Node
}

// sectionize moves the top-level children of content under article. Each
// heading opens a new section nested below the nearest preceding section of
// a lower level; other elements go to the most recently opened section.
func sectionize(content, article *html.Node) []*Section {
	imagesToFigures(content)

	var (
		sections []*Section
		byID     = map[string]*Section{}
		pnum     int
		prev     *html.Node
	)
	for _, el := range dom.Children(content) {
		if el.Type != html.ElementNode {
			continue
		}
		content.RemoveChild(el)

		if level := dom.HeadingLevel(el); level > 0 {
			s := &Section{
				ID:    fmt.Sprintf("section-%d", len(sections)+1),
				Level: level,
			}
			s.Node = dom.Element("section", "id", s.ID)
			s.Node.AppendChild(el)
			for i := len(sections) - 1; i >= 0; i-- {
				if sections[i].Level < level {
					s.Parent = sections[i].ID
					break
				}
			}
			sections = append(sections, s)
			byID[s.ID] = s
			pnum = 0
			prev = el
			continue
		}

		parent := article
		if len(sections) > 0 {
			parent = sections[len(sections)-1].Node
		}
		if dom.IsElement(el, "p") {
			if isEmpty(el) {
				if dom.HeadingLevel(prev) > 0 {
					donateAnchor(el, prev)
				}
			} else {
				pnum++
				if _, ok := dom.Attr(el, "id"); !ok {
					dom.SetAttr(el, "id", fmt.Sprintf("%s-%d", dom.AttrOr(parent, "id"), pnum))
				}
			}
		}
		parent.AppendChild(el)
		prev = el
	}

	for _, s := range sections {
		parent := article
		if p, ok := byID[s.Parent]; ok {
			parent = p.Node
		}
		parent.AppendChild(s.Node)
	}
	return sections
}

// donateAnchor gives heading the name of a bare anchor found in p.
func donateAnchor(p, heading *html.Node) {
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if !dom.IsElement(c, "a") {
			continue
		}
		name, hasName := dom.Attr(c, "name")
		_, hasHref := dom.Attr(c, "href")
		if hasName && !hasHref {
			dom.SetAttr(heading, "id", name)
			return
		}
	}
}

// isEmpty reports whether a paragraph has no visible content. Images count
// as content; br elements do not.
func isEmpty(p *html.Node) bool {
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		case html.ElementNode:
			if dom.IsElement(c, "img", "figure", "audio") {
				return false
			}
			if !dom.IsElement(c, "br") && dom.TextContent(c) != "" {
				return false
			}
		}
	}
	return true
}

// imagesToFigures wraps images in figure elements captioned from their alt
// text. Linked images whose source is a button graphic are dropped.
func imagesToFigures(root *html.Node) {
	for _, img := range dom.FindAll(root, "img") {
		if dom.IsElement(img.Parent, "a") && strings.Contains(dom.AttrOr(img, "src"), "ve-button") {
			dom.Detach(img.Parent)
			continue
		}
		figure := dom.Element("figure")
		if class, ok := dom.Attr(img, "class"); ok {
			dom.SetAttr(figure, "class", class)
		}
		figure.AppendChild(dom.Element("img", "src", dom.AttrOr(img, "src")))
		if alt := dom.AttrOr(img, "alt"); alt != "" {
			caption := dom.Element("figcaption")
			caption.AppendChild(dom.Text(alt))
			figure.AppendChild(caption)
		}
		dom.Replace(img, figure)
	}
}

// finalize runs the structural clean-up that must follow tagging.
func (t *Transformer) finalize(_ context.Context, doc *document) error {
	for _, p := range dom.FindAll(doc.article, "p") {
		if isEmpty(p) {
			dom.Detach(p)
		}
	}
	addHeadingIDs(doc.article)
	addEntityClasses(doc.article, doc.records)
	return nil
}

func addHeadingIDs(root *html.Node) {
	for _, h := range dom.FindAll(root, "h1", "h2", "h3", "h4", "h5", "h6") {
		if _, ok := dom.Attr(h, "id"); ok {
			continue
		}
		id, err := slug.Normalize(dom.TextContent(h))
		if err != nil || id == "" {
			continue
		}
		dom.SetAttr(h, "id", id)
	}
}

// addEntityClasses appends the record category to entity elements.
func addEntityClasses(root *html.Node, records *markup.Collection) {
	for _, el := range dom.FindAll(root, "span", "var") {
		if !dom.HasClass(el, "entity") {
			continue
		}
		ref := dom.AttrOr(el, "data-eid")
		r := records.Get(ref)
		if r == nil {
			r = records.EntityByEID(ref)
		}
		if r != nil && r.Category != "" {
			dom.AddClass(el, r.Category)
		}
	}
}
