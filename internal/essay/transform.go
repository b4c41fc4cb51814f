// Package essay turns Markdown visual essays into annotated HTML documents.
package essay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/dgallion1/essayist/internal/cache"
	"github.com/dgallion1/essayist/internal/dom"
	"github.com/dgallion1/essayist/internal/iiif"
	"github.com/dgallion1/essayist/internal/knowledge"
	"github.com/dgallion1/essayist/internal/markdown"
	"github.com/dgallion1/essayist/internal/markup"
)

// ErrParse wraps failures to render or parse the essay source. It is the only
// fatal error category once Markdown has been fetched.
var ErrParse = errors.New("essay parse failed")

// KnowledgeSource looks up entity data for namespaced ids.
type KnowledgeSource interface {
	Lookup(ctx context.Context, ids []string) ([]knowledge.Entity, error)
}

// Geocoder resolves an entity id to [lat, lon]. A nil slice means unknown.
type Geocoder interface {
	Coords(ctx context.Context, id string) ([]float64, error)
}

// ManifestService builds IIIF manifests for images.
type ManifestService interface {
	Create(ctx context.Context, req iiif.Request) (*iiif.Manifest, error)
}

// Site describes where an essay lives. It drives relative link rewriting and
// manifest cache keys.
type Site struct {
	Acct string
	Repo string
	Ref  string
	// Host is the host serving the essay, e.g. "localhost:8080".
	Host string
	// LocalRoot is set when content is read from a local directory.
	LocalRoot bool
}

// Request is one transform invocation.
type Request struct {
	Markdown []byte
	Path     string
	Site     Site
	// Refresh bypasses the knowledge cache read.
	Refresh bool
}

// Result is the transformed document plus run metadata.
type Result struct {
	HTML    string
	Title   string
	Records []*markup.Record
	Run     RunSnapshot
}

// Options wires a Transformer. Nil collaborators disable their stage; nil
// caches default to in-memory stores.
type Options struct {
	Markdown        markdown.Renderer
	Knowledge       KnowledgeSource
	Geocoder        Geocoder
	Manifests       ManifestService
	KnowledgeCache  cache.Cache
	ManifestCache   cache.Cache
	GeoCache        cache.Cache
	ManifestWorkers int
	Runs            *RunStore
	Log             *slog.Logger
}

// Transformer runs the essay pipeline. It is safe for concurrent use; each
// call works on its own document.
type Transformer struct {
	md        markdown.Renderer
	knowledge KnowledgeSource
	geocoder  Geocoder
	manifests ManifestService
	kgCache   cache.Cache
	mfCache   cache.Cache
	geoCache  cache.Cache
	workers   int
	runs      *RunStore
	log       *slog.Logger
}

func New(opts Options) *Transformer {
	t := &Transformer{
		md:        opts.Markdown,
		knowledge: opts.Knowledge,
		geocoder:  opts.Geocoder,
		manifests: opts.Manifests,
		kgCache:   opts.KnowledgeCache,
		mfCache:   opts.ManifestCache,
		geoCache:  opts.GeoCache,
		workers:   opts.ManifestWorkers,
		runs:      opts.Runs,
		log:       opts.Log,
	}
	if t.md == nil {
		t.md = markdown.NewGoldmark()
	}
	if t.kgCache == nil {
		t.kgCache = cache.NewMemory()
	}
	if t.mfCache == nil {
		t.mfCache = cache.NewMemory()
	}
	if t.geoCache == nil {
		t.geoCache = cache.NewMemory()
	}
	if t.workers <= 0 {
		t.workers = 10
	}
	if t.runs == nil {
		t.runs = NewRunStore(time.Hour)
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// Runs exposes the run registry.
func (t *Transformer) Runs() *RunStore {
	return t.runs
}

// Transform renders markdown found at path into an annotated HTML5 document.
func (t *Transformer) Transform(ctx context.Context, src []byte, path string, site Site) (string, error) {
	res, err := t.Execute(ctx, Request{Markdown: src, Path: path, Site: site})
	if err != nil {
		return "", err
	}
	return res.HTML, nil
}

// document is the working state threaded through the stages.
type document struct {
	req     Request
	root    *html.Node
	article *html.Node
	title   string
	records *markup.Collection
	// explicit holds entity elements authored in the essay and kept in the tree.
	explicit map[*html.Node]bool
	out      string
	run      *Run
	log      *slog.Logger
}

type stageFunc func(context.Context, *document) error

// Execute runs every stage and returns the document with its run snapshot.
func (t *Transformer) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Path == "" {
		req.Path = "/"
	}
	run := NewRun(req.Path)
	t.runs.Put(run)
	log := t.log.With("run_id", run.ID, "path", req.Path)

	doc := &document{
		req:      req,
		records:  markup.NewCollection(),
		explicit: make(map[*html.Node]bool),
		run:      run,
		log:      log,
	}

	stages := []struct {
		stage Stage
		fn    stageFunc
	}{
		{StageParsed, t.parse},
		{StageExtracted, t.extract},
		{StageEnriched, t.enrich},
		{StageTagged, t.tag},
		{StageNormalized, t.finalize},
		{StageManifested, t.resolveManifests},
		{StageSerialized, t.serialize},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			run.Fail(err)
			return nil, fmt.Errorf("transform %s: %w", req.Path, err)
		}
		if err := s.fn(ctx, doc); err != nil {
			run.Fail(err)
			log.Error("transform failed", "stage", s.stage, "error", err)
			return nil, fmt.Errorf("transform %s: %w", req.Path, err)
		}
		if err := run.Advance(s.stage); err != nil {
			return nil, err
		}
		log.Debug("stage complete", "stage", s.stage, "records", doc.records.Len())
	}
	run.SetRecords(doc.records.Len())

	snap := run.Snapshot()
	log.Info("essay transformed",
		"records", snap.Records,
		"notes", len(snap.Notes),
		"duration_ms", snap.DurationMs,
	)
	return &Result{
		HTML:    doc.out,
		Title:   doc.title,
		Records: doc.records.Sorted(),
		Run:     snap,
	}, nil
}

const skeleton = `<!doctype html><html lang="en"><head><meta charset="utf-8"><title></title></head><body></body></html>`

// parse renders the Markdown, rewrites relative links and lays the content
// out as nested sections under the essay article.
func (t *Transformer) parse(_ context.Context, doc *document) error {
	meta, body, err := markdown.SplitFrontMatter(doc.req.Markdown)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	doc.title = meta.Title

	rendered, err := t.md.Render(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	nodes, err := dom.ParseFragment(rendered)
	if err != nil {
		return fmt.Errorf("%w: parse rendered html: %v", ErrParse, err)
	}
	content := dom.Element("div", "id", "md-content")
	for _, n := range nodes {
		content.AppendChild(n)
	}
	removeComments(content)
	rewriteRelativeLinks(content, newLinkBase(doc.req.Site, doc.req.Path))

	root, err := html.Parse(strings.NewReader(skeleton))
	if err != nil {
		return fmt.Errorf("%w: parse skeleton: %v", ErrParse, err)
	}
	if doc.title != "" {
		if titleEl := dom.Find(root, "title"); titleEl != nil {
			titleEl.AppendChild(dom.Text(doc.title))
		}
	}
	article := dom.Element("article", "id", "essay", "data-app", "true", "data-name", doc.req.Path)
	dom.Find(root, "body").AppendChild(article)

	sectionize(content, article)

	doc.root = root
	doc.article = article
	return nil
}

func removeComments(n *html.Node) {
	for _, c := range dom.Children(n) {
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
			continue
		}
		removeComments(c)
	}
}

func render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
