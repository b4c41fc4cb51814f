package essay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/essayist/internal/iiif"
	"github.com/dgallion1/essayist/internal/markup"
)

// Fields never sent to the manifest service.
var manifestExcluded = map[string]bool{
	"id": true, "region": true, "fit": true, "hires": true, "iiif-url": true,
	"static": true, "iiif": true, "tag": true, "tagged_in": true,
}

var manifestRenamed = map[string]string{
	"title": "label",
	"date":  "navDate",
}

type manifestJob struct {
	record *markup.Record
	key    string
	req    iiif.Request
	result string
}

// resolveManifests fills in the manifest of every image that has a source
// URL. Cached manifests are reused; the rest are created concurrently and the
// stage waits for all of them. A failed request only affects its own image.
func (t *Transformer) resolveManifests(ctx context.Context, doc *document) error {
	site := doc.req.Site
	var jobs []*manifestJob
	for _, r := range doc.records.ByTag(markup.TagImage) {
		if r.Manifest != "" {
			continue
		}
		url := imageURL(r)
		if url == "" {
			continue
		}
		key := manifestCacheKey(site.Acct, site.Repo, doc.req.Path, url)
		if b, ok, err := t.mfCache.Get(ctx, key); err != nil {
			doc.log.Warn("manifest cache read failed", "error", err)
		} else if ok {
			r.Manifest = string(b)
			continue
		}
		if t.manifests == nil {
			continue
		}
		req, err := manifestRequest(r, site, doc.req.Path)
		if err != nil {
			doc.log.Warn("manifest request build failed", "id", r.ID, "error", err)
			continue
		}
		jobs = append(jobs, &manifestJob{record: r, key: key, req: req})
	}
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, job := range jobs {
		g.Go(func() error {
			m, err := t.manifests.Create(gctx, job.req)
			if err != nil {
				doc.log.Warn("manifest create failed", "id", job.record.ID, "error", err)
				doc.run.Note("manifest %s: %v", job.record.ID, err)
				return nil
			}
			job.result = m.ID
			if err := t.mfCache.Set(gctx, job.key, []byte(m.ID)); err != nil {
				doc.log.Warn("manifest cache write failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	created := 0
	for _, job := range jobs {
		if job.result != "" {
			job.record.Manifest = job.result
			created++
		}
	}
	doc.log.Debug("manifests resolved", "requested", len(jobs), "created", created)
	return nil
}

func imageURL(r *markup.Record) string {
	if u := r.AttrString("url"); u != "" {
		return u
	}
	return r.AttrString("src")
}

func manifestCacheKey(acct, repo, path, url string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(acct) + repo + path + url))
	return hex.EncodeToString(sum[:])
}

// manifestRequest copies the record's presentational fields into a request.
func manifestRequest(r *markup.Record, site Site, path string) (iiif.Request, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	req := iiif.Request{}
	for k, v := range fields {
		if manifestExcluded[k] {
			continue
		}
		if _, renamed := manifestRenamed[k]; renamed {
			continue
		}
		req[k] = v
	}
	for from, to := range manifestRenamed {
		if v, ok := fields[from]; ok {
			req[to] = v
		}
	}
	req["acct"] = site.Acct
	req["repo"] = site.Repo
	req["essay"] = path
	req["iiif"] = "true"
	return req, nil
}
