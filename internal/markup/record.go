package markup

import (
	"encoding/json"
	"sort"
)

// Tag identifies the kind of custom markup a record was created from.
type Tag string

const (
	TagEntity     Tag = "entity"
	TagMap        Tag = "map"
	TagMapLayer   Tag = "map-layer"
	TagImage      Tag = "image"
	TagAnnotation Tag = "annotation"
	TagAudio      Tag = "audio"
)

var knownTags = map[Tag]bool{
	TagEntity:     true,
	TagMap:        true,
	TagMapLayer:   true,
	TagImage:      true,
	TagAnnotation: true,
	TagAudio:      true,
}

// ParseTag reports whether s names a known markup tag.
func ParseTag(s string) (Tag, bool) {
	t := Tag(s)
	return t, knownTags[t]
}

// Scope controls where a record's label may be matched in plain text.
type Scope string

const (
	ScopeDefault Scope = ""
	ScopeGlobal  Scope = "global"
	ScopeElement Scope = "element"
)

// Record is one piece of custom markup found in an essay.
// Fields shared by every tag come first; the remaining typed fields are only
// populated for the tag named in their comment. Attributes with no typed home
// are kept in Attrs.
type Record struct {
	ID        string
	Tag       Tag
	EID       string
	Label     string
	Aliases   []string
	Category  string
	Scope     Scope
	TaggedIn  []string
	FoundIn   []string
	FromCache bool
	Coords    [][]float64
	Geojson   string

	Center []float64 // map
	Zoom   *float64  // map

	LayerType string // map-layer

	Mode        string           // image
	Manifest    string           // image
	Annotations []map[string]any // image

	Source string // audio

	Attrs map[string]any
}

// NewRecord builds a record from a normalized attribute bag. Keys with a typed
// field are moved out of the bag; everything else stays in Attrs.
func NewRecord(tag Tag, attrs map[string]any) *Record {
	r := &Record{Tag: tag, Attrs: map[string]any{}}
	for k, v := range attrs {
		switch k {
		case "id":
			if s, ok := v.(string); ok {
				r.ID = s
				continue
			}
		case "eid":
			if s, ok := v.(string); ok {
				r.EID = s
				continue
			}
		case "label":
			if s, ok := v.(string); ok {
				r.Label = s
				continue
			}
		case "aliases":
			if l, ok := v.([]string); ok {
				r.Aliases = l
				continue
			}
		case "category":
			if s, ok := v.(string); ok {
				r.Category = s
				continue
			}
		case "scope":
			if s, ok := v.(string); ok {
				r.Scope = Scope(s)
				continue
			}
		case "geojson":
			if s, ok := v.(string); ok {
				r.Geojson = s
				continue
			}
		}
		r.Attrs[k] = v
	}
	return r
}

// Attr returns a raw attribute from the bag.
func (r *Record) Attr(key string) (any, bool) {
	v, ok := r.Attrs[key]
	return v, ok
}

// AttrString returns the attribute as a string, or "" when absent or not a string.
func (r *Record) AttrString(key string) string {
	s, _ := r.Attrs[key].(string)
	return s
}

// SetAttr stores a value in the attribute bag.
func (r *Record) SetAttr(key string, v any) {
	if r.Attrs == nil {
		r.Attrs = map[string]any{}
	}
	r.Attrs[key] = v
}

// Title is the display title used for inferred tags.
func (r *Record) Title() string {
	if t := r.AttrString("title"); t != "" {
		return t
	}
	return r.Label
}

// DataEID is the value written to data-eid attributes for this record.
func (r *Record) DataEID() string {
	if r.EID != "" {
		return r.EID
	}
	return r.ID
}

// AddTaggedIn appends id to TaggedIn if not already present.
func (r *Record) AddTaggedIn(id string) {
	r.TaggedIn = appendUnique(r.TaggedIn, id)
}

// AddFoundIn appends id to FoundIn if not already present.
func (r *Record) AddFoundIn(id string) {
	r.FoundIn = appendUnique(r.FoundIn, id)
}

// IsFoundIn reports whether an inferred tag already exists in block id.
func (r *Record) IsFoundIn(id string) bool {
	return contains(r.FoundIn, id)
}

// TaggedInAny reports whether any of ids is in TaggedIn.
func (r *Record) TaggedInAny(ids []string) bool {
	for _, id := range ids {
		if contains(r.TaggedIn, id) {
			return true
		}
	}
	return false
}

// FillFrom copies fields from other that r does not have yet. Existing values
// win; list fields are unioned.
func (r *Record) FillFrom(other *Record) {
	if r.EID == "" {
		r.EID = other.EID
	}
	if r.Label == "" {
		r.Label = other.Label
	}
	if r.Category == "" {
		r.Category = other.Category
	}
	if r.Scope == ScopeDefault {
		r.Scope = other.Scope
	}
	if r.Geojson == "" {
		r.Geojson = other.Geojson
	}
	if r.Coords == nil {
		r.Coords = other.Coords
	}
	r.Aliases = appendUnique(r.Aliases, other.Aliases...)
	r.TaggedIn = appendUnique(r.TaggedIn, other.TaggedIn...)
	r.FoundIn = appendUnique(r.FoundIn, other.FoundIn...)
	for k, v := range other.Attrs {
		if _, ok := r.Attrs[k]; !ok {
			r.SetAttr(k, v)
		}
	}
}

// Overlay merges a later occurrence of the same record into r. Scalars set on
// other replace r's; list fields are unioned.
func (r *Record) Overlay(other *Record) {
	if other.EID != "" {
		r.EID = other.EID
	}
	if other.Label != "" {
		r.Label = other.Label
	}
	if other.Category != "" {
		r.Category = other.Category
	}
	if other.Scope != ScopeDefault {
		r.Scope = other.Scope
	}
	if other.Geojson != "" {
		r.Geojson = other.Geojson
	}
	if other.Coords != nil {
		r.Coords = other.Coords
	}
	if other.Center != nil {
		r.Center = other.Center
	}
	if other.Zoom != nil {
		r.Zoom = other.Zoom
	}
	if other.LayerType != "" {
		r.LayerType = other.LayerType
	}
	if other.Mode != "" {
		r.Mode = other.Mode
	}
	if other.Manifest != "" {
		r.Manifest = other.Manifest
	}
	if other.Annotations != nil {
		r.Annotations = other.Annotations
	}
	if other.Source != "" {
		r.Source = other.Source
	}
	r.Aliases = appendUnique(r.Aliases, other.Aliases...)
	r.TaggedIn = appendUnique(r.TaggedIn, other.TaggedIn...)
	r.FoundIn = appendUnique(r.FoundIn, other.FoundIn...)
	for k, v := range other.Attrs {
		r.SetAttr(k, v)
	}
}

// MarshalJSON flattens the record into the object shape read by the essay viewer.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attrs)+8)
	for k, v := range r.Attrs {
		out[k] = v
	}
	out["id"] = r.ID
	out["tag"] = r.Tag
	tagged := r.TaggedIn
	if tagged == nil {
		tagged = []string{}
	}
	out["tagged_in"] = tagged
	if len(r.FoundIn) > 0 {
		out["found_in"] = r.FoundIn
	}
	if r.EID != "" {
		out["eid"] = r.EID
	}
	if r.Label != "" {
		out["label"] = r.Label
	}
	if len(r.Aliases) > 0 {
		out["aliases"] = r.Aliases
	}
	if r.Category != "" {
		out["category"] = r.Category
	}
	if r.Scope != ScopeDefault {
		out["scope"] = r.Scope
	}
	if r.FromCache {
		out["fromCache"] = true
	}
	if r.Coords != nil {
		out["coords"] = r.Coords
	}
	if r.Geojson != "" {
		out["geojson"] = r.Geojson
	}
	if r.Center != nil {
		out["center"] = r.Center
	}
	if r.Zoom != nil {
		out["zoom"] = *r.Zoom
	}
	if r.LayerType != "" {
		out["type"] = r.LayerType
	}
	if r.Mode != "" {
		out["mode"] = r.Mode
	}
	if r.Manifest != "" {
		out["manifest"] = r.Manifest
	}
	if len(r.Annotations) > 0 {
		out["annotations"] = r.Annotations
	}
	if r.Source != "" {
		out["src"] = r.Source
	}
	return json.Marshal(out)
}

// SortedUnion returns the sorted set union of a and b.
func SortedUnion(a, b []string) []string {
	merged := appendUnique(append([]string(nil), a...), b...)
	sort.Strings(merged)
	return merged
}

func appendUnique(list []string, vals ...string) []string {
	for _, v := range vals {
		if !contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
