package essay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/essayist/internal/dom"
	"github.com/dgallion1/essayist/internal/markup"
)

func TestExtract_ImageModeAndFormattedTitle(t *testing.T) {
	tr := newTestTransformer(Options{})
	md := "# Pics\n\n<var data-ve-image data-url=\"https://img.example/a.jpg\" data-title=\"The *Forum*\" data-curtain></var>Text."
	res := mustTransform(t, tr, md)

	r := recordByID(t, res, "image-1")
	assert.Equal(t, "curtain", r.Mode)
	assert.Equal(t, "The Forum", r.AttrString("title"))
	assert.Equal(t, "The <em>Forum</em>", r.AttrString("title_formatted"))
	assert.NotContains(t, r.Attrs, "curtain")
}

func TestExtract_PlainTitleNotFormatted(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# M\n\n<var data-ve-map data-title=\"Italy\"></var>Text.")

	r := recordByID(t, res, "map-1")
	assert.Equal(t, "Italy", r.AttrString("title"))
	assert.NotContains(t, r.Attrs, "title_formatted")
}

func TestExtract_ImageManifestAttribute(t *testing.T) {
	svc := &fakeManifests{}
	tr := newTestTransformer(Options{Manifests: svc})
	md := "# Pics\n\n<var data-ve-image data-url=\"https://img.example/a.jpg\" data-manifest=\"https://iiif.example/given.json\"></var>Text."
	res := mustTransform(t, tr, md)

	assert.Equal(t, "https://iiif.example/given.json", recordByID(t, res, "image-1").Manifest)
	assert.Equal(t, 0, svc.calls)
}

func TestExtract_AnnotationsAttachToPrecedingImage(t *testing.T) {
	tr := newTestTransformer(Options{})
	md := "# Pics\n\n" +
		"<var data-ve-annotation data-region=\"0,0,1,1\"></var>Orphan.\n\n" +
		"<var data-ve-image data-url=\"https://img.example/a.jpg\"></var>" +
		"<var data-ve-annotation data-region=\"1,2,3,4\" data-label=\"Door\"></var>" +
		"<var data-ve-annotation data-region=\"5,6,7,8\"></var>Text."
	res := mustTransform(t, tr, md)

	require.Len(t, res.Records, 1)
	img := recordByID(t, res, "image-1")
	require.Len(t, img.Annotations, 2)
	assert.Equal(t, "annotation-1", img.Annotations[0]["id"])
	assert.Equal(t, "Door", img.Annotations[0]["label"])
	assert.Equal(t, "1,2,3,4", img.Annotations[0]["region"])
	assert.Equal(t, "annotation-2", img.Annotations[1]["id"])

	data := payload(t, res.HTML)
	require.Len(t, data, 1)
	assert.Len(t, data[0]["annotations"], 2)
}

func TestExtract_PlayableAudioBecomesPlayer(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# Sound\n\n<var data-ve-audio data-src=\"https://media.example/track.mp3\"></var>Listen.")

	r := recordByID(t, res, "audio-1")
	assert.Equal(t, markup.TagAudio, r.Tag)
	assert.Equal(t, "https://media.example/track.mp3", r.Source)
	assert.Equal(t, []string{"section-1-1"}, r.TaggedIn)

	doc := parseOutput(t, res.HTML)
	player := dom.Find(doc, "audio")
	require.NotNil(t, player)
	assert.Equal(t, "audio-1", dom.AttrOr(player, "id"))
	_, hasControls := dom.Attr(player, "controls")
	assert.True(t, hasControls)
	source := dom.Find(player, "source")
	require.NotNil(t, source)
	assert.Equal(t, "audio/mpeg", dom.AttrOr(source, "type"))
	assert.Nil(t, dom.Find(doc, "var"))
}

func TestExtract_UnplayableAudioRemoved(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# Sound\n\n<var data-ve-audio data-src=\"https://media.example/track.wav\"></var>Listen.")

	assert.Nil(t, dom.Find(parseOutput(t, res.HTML), "audio"))
	r := recordByID(t, res, "audio-1")
	assert.Empty(t, r.Source)
}

func TestExtract_MapLayerType(t *testing.T) {
	tr := newTestTransformer(Options{})
	md := "# Layers\n\n<var data-ve-map-layer data-geojson data-url=\"https://geo.example/roads.geojson\" data-label=\"Roads\"></var>Roads are long.\n\nRoads again."
	res := mustTransform(t, tr, md)

	r := recordByID(t, res, "map-layer-1")
	assert.Equal(t, "geojson", r.LayerType)
	assert.Empty(t, r.Geojson)
	assert.NotContains(t, r.Attrs, "geojson")

	spans := inferredSpans(t, res.HTML)
	require.Len(t, spans, 1)
	assert.Equal(t, "map-layer-1", dom.AttrOr(spans[0], "data-eid"))
}

func TestExtract_GeocodedCenterIsCached(t *testing.T) {
	geo := &fakeGeocoder{coords: map[string][]float64{"wd:Q220": {41.9, 12.5}}}
	tr := newTestTransformer(Options{Geocoder: geo})
	md := "# Map\n\n<var data-ve-map data-center=\"Q220\"></var>Text."

	first := mustTransform(t, tr, md)
	second := mustTransform(t, tr, md)

	assert.Equal(t, []float64{41.9, 12.5}, recordByID(t, first, "map-1").Center)
	assert.Equal(t, []float64{41.9, 12.5}, recordByID(t, second, "map-1").Center)
	assert.Equal(t, 1, geo.calls)
}

func TestExtract_GeocodeFailureLeavesCenterUnset(t *testing.T) {
	geo := &fakeGeocoder{}
	tr := newTestTransformer(Options{Geocoder: geo})
	res := mustTransform(t, tr, "# Map\n\n<var data-ve-map data-center=\"Q999\"></var>Text.")

	assert.Nil(t, recordByID(t, res, "map-1").Center)
	require.Len(t, res.Run.Notes, 1)
	assert.Contains(t, res.Run.Notes[0], "wd:Q999")
}

func TestExtract_UnknownTagKept(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# V\n\n<var data-ve-video data-src=\"https://media.example/v.mp4\"></var>Text.")

	r := recordByID(t, res, "video-1")
	assert.Equal(t, markup.Tag("video"), r.Tag)
	assert.Equal(t, "https://media.example/v.mp4", r.AttrString("src"))
}

func TestExtract_PreformattedMarkupIgnored(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# Code\n\n<pre><span data-ve-entity data-label=\"X\">X</span></pre>\n\nText.")

	assert.Empty(t, res.Records)
	assert.Contains(t, res.HTML, `<span data-ve-entity="" data-label="X">X</span>`)
}

func TestExtract_CoordinatesMakeLocation(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# P\n\n<span data-ve-entity data-label=\"Ostia\" data-coords=\"41.7,12.3\"></span>Text.")

	assert.Equal(t, "location", recordByID(t, res, "entity-1").Category)
}

func TestExtract_ExplicitEntityDecorated(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# P\n\n<span>Caesar</span> spoke.\n\n<span data-eid=\"Q1048\">Brutus</span> too.")

	doc := parseOutput(t, res.HTML)
	spans := dom.FindAll(doc, "span")
	require.Len(t, spans, 2)

	assert.Equal(t, "entity tagged", dom.AttrOr(spans[0], "class"))
	assert.Equal(t, "entity-1", dom.AttrOr(spans[0], "data-eid"))
	assert.Equal(t, "Caesar", dom.TextContent(spans[0]))

	_, hasClass := dom.Attr(spans[1], "class")
	assert.False(t, hasClass)
	assert.Equal(t, "wd:Q1048", recordByID(t, res, "entity-2").EID)
	assert.Equal(t, []string{"section-1-2"}, recordByID(t, res, "entity-2").TaggedIn)
}

func TestExtract_SameEIDMergesIntoFirstEntity(t *testing.T) {
	tr := newTestTransformer(Options{})
	md := "# P\n\n<span data-ve-entity data-eid=\"Q1\" data-label=\"Rome\"></span>One.\n\n" +
		"<span data-ve-entity data-eid=\"Q1\" data-label=\"Roma\" data-category=\"place\"></span>Two.\n\n" +
		"<span data-ve-entity data-eid=\"Q2\" data-label=\"Ostia\"></span>Three."
	res := mustTransform(t, tr, md)

	require.Len(t, res.Records, 2)
	rome := recordByID(t, res, "entity-1")
	assert.Equal(t, "Rome", rome.Label)
	assert.Equal(t, "place", rome.Category)
	assert.Equal(t, []string{"section-1-1", "section-1-2"}, rome.TaggedIn)
	assert.Equal(t, "wd:Q2", recordByID(t, res, "entity-2").EID)
}

func TestExtract_ExplicitIDMerges(t *testing.T) {
	tr := newTestTransformer(Options{})
	md := "# M\n\n<var data-ve-map data-id=\"main\" data-zoom=\"3\"></var>One.\n\n<var data-ve-map data-id=\"main\" data-center=\"1,2\"></var>Two."
	res := mustTransform(t, tr, md)

	require.Len(t, res.Records, 1)
	r := recordByID(t, res, "main")
	require.NotNil(t, r.Zoom)
	assert.Equal(t, 3.0, *r.Zoom)
	assert.Equal(t, []float64{1, 2}, r.Center)
	assert.Equal(t, []string{"section-1-1", "section-1-2"}, r.TaggedIn)
}

func TestExtract_EmptyValueBecomesTrue(t *testing.T) {
	attrs := collectAttrs(dom.Element("var", "data-ve-map", "", "class", "x", "data-zoom", "4"))
	assert.Equal(t, map[string]any{"ve-map": true, "zoom": "4"}, attrs)
}

func TestParseCenterAndZoom(t *testing.T) {
	assert.Equal(t, []float64{-33.9, 151.2}, parseCenter(" -33.9 , 151.2 "))
	assert.Equal(t, defaultCenter, parseCenter(""))
	assert.Equal(t, defaultZoom, parseZoom(true))
	assert.Equal(t, defaultZoom, parseZoom("NaN"))
	assert.Equal(t, 12.0, parseZoom("12"))
}

func TestEnclosingIDFallsBackToSection(t *testing.T) {
	tr := newTestTransformer(Options{})
	res := mustTransform(t, tr, "# Only\n\n<var data-ve-map></var>\n\nText.")

	// The var sits in a paragraph with nothing else, so the section owns it.
	r := recordByID(t, res, "map-1")
	assert.Equal(t, []string{"section-1"}, r.TaggedIn)
	assert.False(t, strings.Contains(res.HTML, "<var"))
}
