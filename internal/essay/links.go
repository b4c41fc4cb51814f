package essay

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/essayist/internal/dom"
)

var linkAttrs = []string{"banner", "logo", "src", "url", "file", "manifest", "data", "geojson"}

// linkBase resolves relative resource references in an essay.
type linkBase struct {
	abs string
	rel string
}

// newLinkBase returns nil when there is nothing to resolve against.
func newLinkBase(site Site, essayPath string) *linkBase {
	var abs string
	switch {
	case site.LocalRoot && strings.HasPrefix(site.Host, "localhost"):
		abs = fmt.Sprintf("http://%s/static", site.Host)
	case site.Acct != "" && site.Repo != "":
		ref := site.Ref
		if ref == "" {
			ref = "main"
		}
		abs = fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", site.Acct, site.Repo, ref)
	default:
		return nil
	}

	rel := abs
	elems := strings.Split(strings.TrimPrefix(essayPath, "/"), "/")
	if len(elems) > 1 {
		rel = abs + "/" + strings.Join(elems[:len(elems)-1], "/")
	}
	return &linkBase{abs: abs, rel: rel}
}

func (b *linkBase) resolve(v string) string {
	switch {
	case v == "", strings.HasPrefix(v, "http"):
		return v
	case strings.HasPrefix(v, "/"):
		return b.abs + v
	default:
		return b.rel + "/" + v
	}
}

// rewriteRelativeLinks makes resource attributes of images and markup
// elements absolute.
func rewriteRelativeLinks(root *html.Node, base *linkBase) {
	if base == nil {
		return
	}
	for _, el := range dom.FindAll(root, "img", "var", "span", "param") {
		for _, name := range linkAttrs {
			for _, key := range []string{name, "data-" + name} {
				if v, ok := dom.Attr(el, key); ok {
					dom.SetAttr(el, key, base.resolve(v))
				}
			}
		}
	}
}
