package essay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dgallion1/essayist/internal/dom"
	"github.com/dgallion1/essayist/internal/iiif"
	"github.com/dgallion1/essayist/internal/knowledge"
	"github.com/dgallion1/essayist/internal/markup"
)

type fakeKnowledge struct {
	mu       sync.Mutex
	calls    int
	lastIDs  []string
	entities []knowledge.Entity
	err      error
}

func (f *fakeKnowledge) Lookup(_ context.Context, ids []string) ([]knowledge.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastIDs = append([]string(nil), ids...)
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

type fakeGeocoder struct {
	mu     sync.Mutex
	calls  int
	coords map[string][]float64
}

func (f *fakeGeocoder) Coords(_ context.Context, id string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	c, ok := f.coords[id]
	if !ok {
		return nil, errors.New("no coordinates")
	}
	return c, nil
}

type fakeManifests struct {
	mu    sync.Mutex
	calls int
	reqs  []iiif.Request
	fail  map[string]bool
}

func (f *fakeManifests) Create(_ context.Context, req iiif.Request) (*iiif.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	url, _ := req["url"].(string)
	if f.fail[url] {
		return nil, errors.New("upstream failed")
	}
	return &iiif.Manifest{ID: "https://iiif.example/" + url[strings.LastIndex(url, "/")+1:] + "/manifest.json"}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTransformer(opts Options) *Transformer {
	if opts.Log == nil {
		opts.Log = quietLogger()
	}
	return New(opts)
}

func mustTransform(t *testing.T, tr *Transformer, md string) *Result {
	t.Helper()
	return runRequest(t, tr, Request{Markdown: []byte(md), Path: "/essay"})
}

func runRequest(t *testing.T, tr *Transformer, req Request) *Result {
	t.Helper()
	res, err := tr.Execute(context.Background(), req)
	require.NoError(t, err)
	return res
}

func parseOutput(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func recordByID(t *testing.T, res *Result, id string) *markup.Record {
	t.Helper()
	for _, r := range res.Records {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("record %q not found", id)
	return nil
}

// inferredSpans returns the inferred entity spans in the output.
func inferredSpans(t *testing.T, out string) []*html.Node {
	t.Helper()
	var spans []*html.Node
	for _, s := range dom.FindAll(parseOutput(t, out), "span") {
		if dom.HasClass(s, "inferred") {
			spans = append(spans, s)
		}
	}
	return spans
}

// payload decodes the window.data array embedded in the output.
func payload(t *testing.T, out string) []map[string]any {
	t.Helper()
	const marker = "window.data = "
	start := strings.Index(out, marker)
	require.GreaterOrEqual(t, start, 0, "payload marker missing")
	rest := out[start+len(marker):]
	end := strings.Index(rest, "</script>")
	require.GreaterOrEqual(t, end, 0)
	var data []map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &data))
	return data
}

func byID(doc *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && dom.AttrOr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
