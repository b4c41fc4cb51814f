package essay

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/essayist/internal/dom"
	"github.com/dgallion1/essayist/internal/knowledge"
	"github.com/dgallion1/essayist/internal/markup"
)

const (
	defaultZoom = 2.5
	geoCacheFmt = "%s-coords"
)

var (
	defaultCenter = []float64{25, 0}
	imageModes    = []string{"gallery", "layers", "curtain", "compare"}
	formatted     = map[markup.Tag][]string{
		markup.TagMap:   {"title"},
		markup.TagImage: {"title", "label", "description", "attribution"},
	}
)

// extractor is the state carried through one pass over the markup elements.
type extractor struct {
	t            *Transformer
	doc          *document
	currentImage *markup.Record
	annotations  int
}

// extract scans var, span and param elements in document order and builds
// the markup records.
func (t *Transformer) extract(ctx context.Context, doc *document) error {
	x := &extractor{t: t, doc: doc}
	for _, el := range dom.FindAll(doc.article, "var", "span", "param") {
		if dom.Closest(el, "pre", "code") != nil {
			continue
		}
		if err := x.element(ctx, el); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) element(ctx context.Context, el *html.Node) error {
	attrs := collectAttrs(el)

	var tags []string
	for k := range attrs {
		if strings.HasPrefix(k, "ve-") {
			tags = append(tags, strings.TrimPrefix(k, "ve-"))
		}
	}
	var tag markup.Tag
	switch {
	case len(tags) == 1:
		tag = markup.Tag(tags[0])
		delete(attrs, "ve-"+tags[0])
		if _, known := markup.ParseTag(tags[0]); !known {
			x.doc.log.Debug("unknown markup tag", "tag", tags[0])
		}
	case dom.IsElement(el, "span", "param"):
		tag = markup.TagEntity
	default:
		return nil
	}

	if s, ok := attrs["aliases"].(string); ok {
		var aliases []string
		for _, a := range strings.Split(s, "|") {
			if a = strings.TrimSpace(a); a != "" {
				aliases = append(aliases, a)
			}
		}
		attrs["aliases"] = aliases
	}
	if qid, ok := attrs["qid"]; ok {
		attrs["eid"] = qid
		delete(attrs, "qid")
	}
	if eid, ok := attrs["eid"].(string); ok {
		attrs["eid"] = knowledge.WithNamespace(eid)
	}
	if _, ok := attrs["id"].(string); !ok {
		if tag == markup.TagAnnotation {
			attrs["id"] = fmt.Sprintf("%s-%d", tag, x.annotations+1)
		} else {
			attrs["id"] = x.doc.records.NextID(tag)
		}
	}
	if err := x.formatFields(tag, attrs); err != nil {
		return err
	}

	r := markup.NewRecord(tag, attrs)
	enclosing := enclosingID(el)

	switch tag {
	case markup.TagEntity:
		if _, ok := r.Attrs["coords"]; ok || r.Geojson != "" {
			r.Category = "location"
		}
	case markup.TagMap:
		x.mapFields(ctx, r)
	case markup.TagMapLayer:
		for _, layerType := range []string{"geojson", "mapwarper"} {
			if _, ok := attrs[layerType]; ok {
				r.LayerType = layerType
				delete(r.Attrs, layerType)
				if layerType == "geojson" {
					r.Geojson = ""
				}
				break
			}
		}
	case markup.TagImage:
		for _, mode := range imageModes {
			if isTrue(r.Attrs[mode]) {
				r.Mode = mode
				delete(r.Attrs, mode)
				break
			}
		}
		if m := r.AttrString("manifest"); m != "" {
			r.Manifest = m
			delete(r.Attrs, "manifest")
		}
		x.currentImage = r
	case markup.TagAnnotation:
		x.annotate(r)
		dom.Detach(el)
		return nil
	case markup.TagAudio:
		x.audio(el, r)
	}

	if enclosing != "" && r.Scope != markup.ScopeElement {
		r.AddTaggedIn(enclosing)
	}

	switch {
	case tag == markup.TagEntity && dom.TextContent(el) != "":
		if !hasDataAttrs(el) {
			dom.SetAttr(el, "data-eid", r.DataEID())
			dom.SetAttr(el, "class", "entity tagged")
		}
		x.doc.explicit[el] = true
	case tag != markup.TagAudio:
		dom.Detach(el)
	}

	if tag == markup.TagEntity {
		if existing := x.doc.records.EntityByEID(r.EID); existing != nil {
			existing.FillFrom(r)
			return nil
		}
	}
	x.doc.records.Put(r)
	return nil
}

// collectAttrs gathers element attributes with any "data-" prefix removed.
// Class is ignored and empty values become true.
func collectAttrs(el *html.Node) map[string]any {
	attrs := make(map[string]any, len(el.Attr))
	for _, a := range el.Attr {
		key := strings.TrimPrefix(a.Key, "data-")
		if key == "class" || key == "" {
			continue
		}
		if a.Val == "" {
			attrs[key] = true
			continue
		}
		attrs[key] = a.Val
	}
	return attrs
}

func hasDataAttrs(el *html.Node) bool {
	for _, a := range el.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			return true
		}
	}
	return false
}

func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// enclosingID is the id of a non-empty parent paragraph, or else of the
// nearest section or article.
func enclosingID(el *html.Node) string {
	if p := el.Parent; dom.IsElement(p, "p") {
		if id, ok := dom.Attr(p, "id"); ok && !isEmpty(p) {
			return id
		}
	}
	if s := dom.Closest(el, "section", "article"); s != nil {
		return dom.AttrOr(s, "id")
	}
	return ""
}

// formatFields renders Markdown in presentational attributes. When the
// rendering differs from the source, the HTML is kept under "{field}_formatted"
// and the raw value is reduced to its plain text.
func (x *extractor) formatFields(tag markup.Tag, attrs map[string]any) error {
	for _, field := range formatted[tag] {
		raw, ok := attrs[field].(string)
		if !ok {
			continue
		}
		out, err := x.t.md.RenderInline(raw)
		if err != nil {
			return fmt.Errorf("%w: format %s: %v", ErrParse, field, err)
		}
		if out == raw {
			continue
		}
		attrs[field+"_formatted"] = out
		nodes, err := dom.ParseFragment(out)
		if err != nil {
			continue
		}
		var plain strings.Builder
		for _, n := range nodes {
			plain.WriteString(dom.RawText(n))
		}
		attrs[field] = plain.String()
	}
	return nil
}

func (x *extractor) mapFields(ctx context.Context, r *markup.Record) {
	if v, ok := r.Attrs["center"]; ok {
		delete(r.Attrs, "center")
		s, _ := v.(string)
		if knowledge.IsQID(s) {
			r.Center = x.geocode(ctx, knowledge.WithNamespace(s))
		} else {
			r.Center = parseCenter(s)
		}
	}
	if v, ok := r.Attrs["zoom"]; ok {
		delete(r.Attrs, "zoom")
		z := parseZoom(v)
		r.Zoom = &z
	}
}

// parseCenter reads "lat,lon" or "lat lon".
func parseCenter(s string) []float64 {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 2 {
		return append([]float64(nil), defaultCenter...)
	}
	out := make([]float64, 0, 2)
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return append([]float64(nil), defaultCenter...)
		}
		out = append(out, v)
	}
	return out
}

func parseZoom(v any) float64 {
	s, _ := v.(string)
	z, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(z) || math.IsInf(z, 0) {
		return defaultZoom
	}
	return math.Round(z*10) / 10
}

// geocode resolves an entity to coordinates through the geo cache. Failures
// leave the center unset.
func (x *extractor) geocode(ctx context.Context, id string) []float64 {
	key := fmt.Sprintf(geoCacheFmt, id)
	if b, ok, err := x.t.geoCache.Get(ctx, key); err == nil && ok {
		var coords []float64
		if json.Unmarshal(b, &coords) == nil && len(coords) == 2 {
			return coords
		}
	}
	if x.t.geocoder == nil {
		return nil
	}
	coords, err := x.t.geocoder.Coords(ctx, id)
	if err != nil {
		x.doc.log.Warn("geocode failed", "eid", id, "error", err)
		x.doc.run.Note("geocode %s: %v", id, err)
		return nil
	}
	if len(coords) != 2 {
		return nil
	}
	if b, err := json.Marshal(coords); err == nil {
		if err := x.t.geoCache.Set(ctx, key, b); err != nil {
			x.doc.log.Warn("geo cache write failed", "key", key, "error", err)
		}
	}
	return coords
}

// annotate attaches an annotation to the most recent image.
func (x *extractor) annotate(r *markup.Record) {
	if x.currentImage == nil {
		x.doc.log.Debug("annotation without image dropped", "id", r.ID)
		return
	}
	x.annotations++
	bag := map[string]any{}
	for k, v := range r.Attrs {
		bag[k] = v
	}
	if r.Label != "" {
		bag["label"] = r.Label
	}
	if r.EID != "" {
		bag["eid"] = r.EID
	}
	bag["id"] = r.ID
	x.currentImage.Annotations = append(x.currentImage.Annotations, bag)
}

// audio swaps the element for a native player when the source is playable.
func (x *extractor) audio(el *html.Node, r *markup.Record) {
	src := r.AttrString("src")
	if src == "" {
		src = r.AttrString("url")
	}
	ext := ""
	if i := strings.LastIndex(src, "."); i >= 0 {
		ext = strings.ToLower(src[i+1:])
	}
	mime := map[string]string{"mp3": "audio/mpeg", "ogg": "audio/ogg"}[ext]
	if mime == "" {
		dom.Detach(el)
		return
	}
	r.Source = src
	delete(r.Attrs, "src")
	delete(r.Attrs, "url")

	player := dom.Element("audio",
		"controls", "",
		"id", r.ID,
		"style", "width:150px; height:30px; margin-bottom:-6px;",
	)
	player.AppendChild(dom.Element("source", "src", src, "type", mime))
	dom.Replace(el, player)
}
