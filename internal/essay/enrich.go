package essay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dgallion1/essayist/internal/knowledge"
	"github.com/dgallion1/essayist/internal/markup"
)

// enrich merges knowledge-graph data into entity records. Lookup failures
// are logged and leave the records as they were.
func (t *Transformer) enrich(ctx context.Context, doc *document) error {
	byEID := map[string]*markup.Record{}
	for _, r := range doc.records.ByTag(markup.TagEntity) {
		if r.EID != "" && knowledge.IsQID(r.EID) {
			byEID[r.EID] = r
		}
	}
	if len(byEID) == 0 || t.knowledge == nil {
		return nil
	}

	ids := make([]string, 0, len(byEID))
	for id := range byEID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	key := knowledgeCacheKey(ids)

	entities, fromCache := t.cachedEntities(ctx, doc, key)
	if !fromCache {
		var query []string
		for _, id := range ids {
			if knowledge.Supported(id) {
				query = append(query, id)
			}
		}
		if len(query) == 0 {
			return nil
		}
		fetched, err := t.knowledge.Lookup(ctx, query)
		if err != nil {
			doc.log.Warn("knowledge lookup failed", "ids", len(query), "error", err)
			doc.run.Note("knowledge lookup: %v", err)
			return nil
		}
		entities = fetched
		if b, err := json.Marshal(entities); err == nil {
			if err := t.kgCache.Set(ctx, key, b); err != nil {
				doc.log.Warn("knowledge cache write failed", "error", err)
			}
		}
	}

	matched := 0
	for _, e := range entities {
		r, ok := byEID[e.ID()]
		if !ok {
			continue
		}
		mergeEntity(r, e, fromCache)
		matched++
	}
	doc.log.Debug("entities enriched", "requested", len(ids), "matched", matched, "from_cache", fromCache)
	return nil
}

func (t *Transformer) cachedEntities(ctx context.Context, doc *document, key string) ([]knowledge.Entity, bool) {
	if doc.req.Refresh {
		return nil, false
	}
	b, ok, err := t.kgCache.Get(ctx, key)
	if err != nil {
		doc.log.Warn("knowledge cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entities []knowledge.Entity
	if err := json.Unmarshal(b, &entities); err != nil {
		doc.log.Warn("knowledge cache entry unreadable", "error", err)
		return nil, false
	}
	return entities, true
}

// knowledgeCacheKey hashes the sorted id list.
func knowledgeCacheKey(sortedIDs []string) string {
	sum := sha256.Sum256([]byte(strings.Join(sortedIDs, ",")))
	return hex.EncodeToString(sum[:])
}

// mergeEntity applies fetched properties to r. The record id and a locally
// set category are never replaced; aliases are unioned.
func mergeEntity(r *markup.Record, e knowledge.Entity, fromCache bool) {
	r.FromCache = fromCache
	for k, v := range e {
		switch k {
		case "id":
		case "aliases":
			aliases := toStrings(v)
			if len(r.Aliases) > 0 {
				r.Aliases = markup.SortedUnion(r.Aliases, aliases)
			} else {
				r.Aliases = aliases
			}
		case "qid":
			if s, ok := v.(string); ok {
				r.SetAttr("qid", knowledge.WithNamespace(s))
			}
		case "coords":
			var coords [][]float64
			for _, s := range toStrings(v) {
				if pt, err := knowledge.ParsePoint(s); err == nil {
					coords = append(coords, pt)
				}
			}
			if len(coords) > 0 {
				r.Coords = coords
				delete(r.Attrs, "coords")
			}
		case "whos_on_first_id":
			if s, ok := v.(string); ok && s != "" {
				r.Geojson = knowledge.WhosOnFirstURL(s)
			}
		case "category":
			if r.Category == "" {
				r.Category, _ = v.(string)
			}
		case "label":
			if s, ok := v.(string); ok {
				r.Label = s
			}
		case "geojson":
			if s, ok := v.(string); ok {
				r.Geojson = s
			}
		case "eid":
		default:
			r.SetAttr(k, v)
		}
	}
}

// toStrings coerces a scalar or list value into a string list.
func toStrings(v any) []string {
	switch l := v.(type) {
	case string:
		return []string{l}
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
