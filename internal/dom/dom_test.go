package dom

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, n))
	return buf.String()
}

func TestHeadingLevel(t *testing.T) {
	doc := parse(t, "<h1>a</h1><h4>b</h4><p>c</p>")
	assert.Equal(t, 1, HeadingLevel(Find(doc, "h1")))
	assert.Equal(t, 4, HeadingLevel(Find(doc, "h4")))
	assert.Equal(t, 0, HeadingLevel(Find(doc, "p")))
	assert.Equal(t, 0, HeadingLevel(nil))
}

func TestTextContent(t *testing.T) {
	doc := parse(t, "<p>  Hello <em>big</em> world  </p>")
	p := Find(doc, "p")
	assert.Equal(t, "Hello big world", TextContent(p))
	assert.Equal(t, "  Hello big world  ", RawText(p))
}

func TestFindAllAndClosest(t *testing.T) {
	doc := parse(t, `<section id="s"><p id="p"><span>a</span><var>b</var></p></section>`)
	found := FindAll(doc, "span", "var")
	require.Len(t, found, 2)
	assert.Equal(t, "span", found[0].Data)
	assert.Equal(t, "p", Closest(found[1], "p", "section").Data)
	assert.Equal(t, "s", AttrOr(Closest(found[0], "section"), "id"))
	assert.Nil(t, Closest(found[0], "article"))
}

func TestAttrHelpers(t *testing.T) {
	n := Element("span", "id", "x")
	SetAttr(n, "id", "y")
	SetAttr(n, "title", "t")
	v, ok := Attr(n, "id")
	assert.True(t, ok)
	assert.Equal(t, "y", v)
	assert.Equal(t, "t", AttrOr(n, "title"))

	_, ok = Attr(n, "lang")
	assert.False(t, ok)
}

func TestClasses(t *testing.T) {
	n := Element("span", "class", "entity")
	AddClass(n, "tagged")
	AddClass(n, "entity")
	AddClass(n, "")
	assert.Equal(t, []string{"entity", "tagged"}, Classes(n))
	assert.True(t, HasClass(n, "tagged"))
	assert.False(t, HasClass(n, "inferred"))
}

func TestReplace(t *testing.T) {
	doc := parse(t, "<div><p>one</p><p>two</p></div>")
	div := Find(doc, "div")
	first := Find(doc, "p")
	Replace(first, Element("hr"))

	assert.Contains(t, render(t, div), "<div><hr/><p>two</p></div>")
}

func TestParseFragment(t *testing.T) {
	nodes, err := ParseFragment("<em>a</em> b")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "em", nodes[0].Data)
	assert.Equal(t, " b", nodes[1].Data)
}
