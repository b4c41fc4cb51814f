package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/essayist/internal/stats"
)

// Entity is the property bag returned for one knowledge-graph item. The "id"
// key always holds the namespaced id.
type Entity map[string]any

// ID returns the namespaced id of the entity.
func (e Entity) ID() string {
	s, _ := e["id"].(string)
	return s
}

// StatusError is returned when an endpoint answers with a non-200 status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sparql %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	// Endpoints maps namespace to SPARQL endpoint URL.
	Endpoints map[string]string
	UserAgent string
	Timeout   time.Duration
	Stats     *stats.Tracker
}

// Client queries SPARQL endpoints for entity data and coordinates.
type Client struct {
	endpoints  map[string]string
	userAgent  string
	httpClient *http.Client
	stats      *stats.Tracker
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "essayist"
	}
	return &Client{
		endpoints:  cfg.Endpoints,
		userAgent:  ua,
		httpClient: &http.Client{Timeout: timeout},
		stats:      cfg.Stats,
	}
}

const entityQuery = `PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX schema: <http://schema.org/>
PREFIX skos: <http://www.w3.org/2004/02/skos/core#>
PREFIX wdt: <http://www.wikidata.org/prop/direct/>
SELECT ?item ?label ?description ?alias ?coords ?wof ?image ?wikipedia WHERE {
  VALUES (?item) { %s }
  OPTIONAL { ?item rdfs:label ?label . FILTER(LANG(?label) = "en") }
  OPTIONAL { ?item schema:description ?description . FILTER(LANG(?description) = "en") }
  OPTIONAL { ?item skos:altLabel ?alias . FILTER(LANG(?alias) = "en") }
  OPTIONAL { ?item wdt:P625 ?coords . }
  OPTIONAL { ?item wdt:P6766 ?wof . }
  OPTIONAL { ?item wdt:P18 ?image . }
  OPTIONAL { ?wikipedia schema:about ?item ; schema:isPartOf <https://en.wikipedia.org/> . }
}`

const coordsQuery = `PREFIX wdt: <http://www.wikidata.org/prop/direct/>
SELECT ?coords WHERE { <%s> wdt:P625 ?coords . }`

type binding map[string]struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []binding `json:"bindings"`
	} `json:"results"`
}

// Lookup fetches entity data for ids, grouped by namespace. Ids in
// namespaces without a configured endpoint are skipped.
func (c *Client) Lookup(ctx context.Context, ids []string) ([]Entity, error) {
	byNS := map[string][]string{}
	for _, id := range ids {
		ns, _ := Split(id)
		if _, ok := c.endpoints[ns]; !ok {
			continue
		}
		uri, ok := URI(id)
		if !ok {
			continue
		}
		byNS[ns] = append(byNS[ns], uri)
	}

	namespaces := make([]string, 0, len(byNS))
	for ns := range byNS {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var out []Entity
	for _, ns := range namespaces {
		values := make([]string, 0, len(byNS[ns]))
		for _, uri := range byNS[ns] {
			values = append(values, "(<"+uri+">)")
		}
		resp, err := c.query(ctx, stats.Knowledge, c.endpoints[ns], fmt.Sprintf(entityQuery, strings.Join(values, " ")))
		if err != nil {
			return nil, fmt.Errorf("lookup %s entities: %w", ns, err)
		}
		out = append(out, collectEntities(resp.Results.Bindings)...)
	}
	return out, nil
}

// Coords returns [lat, lon] for an entity, or nil when it has none.
func (c *Client) Coords(ctx context.Context, id string) ([]float64, error) {
	ns, _ := Split(id)
	endpoint, ok := c.endpoints[ns]
	if !ok {
		return nil, fmt.Errorf("coords %s: unsupported namespace %q", id, ns)
	}
	uri, _ := URI(id)
	resp, err := c.query(ctx, stats.Geocode, endpoint, fmt.Sprintf(coordsQuery, uri))
	if err != nil {
		return nil, fmt.Errorf("coords %s: %w", id, err)
	}
	for _, b := range resp.Results.Bindings {
		if v, ok := b["coords"]; ok {
			return ParsePoint(v.Value)
		}
	}
	return nil, nil
}

func (c *Client) query(ctx context.Context, service, endpoint, sparql string) (resp *sparqlResponse, err error) {
	start := time.Now()
	defer func() { c.stats.Observe(service, start, err) }()

	form := url.Values{"query": {sparql}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/sparql-results+json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post query: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, &StatusError{Endpoint: endpoint, Code: httpResp.StatusCode, Body: string(body)}
	}

	var out sparqlResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &out, nil
}

// collectEntities folds result rows into one Entity per item. Multi-valued
// properties (aliases, coords) accumulate across rows.
func collectEntities(rows []binding) []Entity {
	var order []string
	byID := map[string]Entity{}
	for _, row := range rows {
		item, ok := row["item"]
		if !ok {
			continue
		}
		id, ok := CompactURI(item.Value)
		if !ok {
			continue
		}
		e, seen := byID[id]
		if !seen {
			e = Entity{"id": id}
			if ns, local := Split(id); ns == DefaultNamespace {
				e["qid"] = local
			}
			byID[id] = e
			order = append(order, id)
		}
		for key, v := range row {
			switch key {
			case "item":
			case "alias":
				e["aliases"] = appendValue(e["aliases"], v.Value)
			case "coords":
				e["coords"] = appendValue(e["coords"], v.Value)
			case "wof":
				e["whos_on_first_id"] = v.Value
			default:
				e[key] = v.Value
			}
		}
	}

	out := make([]Entity, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func appendValue(cur any, v string) []string {
	list, _ := cur.([]string)
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
