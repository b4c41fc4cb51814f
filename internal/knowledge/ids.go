package knowledge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultNamespace is assumed for ids written without a prefix.
const DefaultNamespace = "wd"

// Namespaces maps supported id prefixes to their entity URI base.
var Namespaces = map[string]string{
	"wd":    "http://www.wikidata.org/entity/",
	"jstor": "http://kg.jstor.org/entity/",
}

var qidPattern = regexp.MustCompile(`^Q[0-9]+$`)

// IsQID reports whether s looks like an entity id, with or without a
// namespace prefix.
func IsQID(s string) bool {
	parts := strings.Split(s, ":")
	return qidPattern.MatchString(parts[len(parts)-1])
}

// WithNamespace prefixes a bare id with the default namespace.
func WithNamespace(id string) string {
	if id == "" || strings.Contains(id, ":") {
		return id
	}
	return DefaultNamespace + ":" + id
}

// Split returns the namespace and local part of a namespaced id.
func Split(id string) (ns, local string) {
	id = WithNamespace(id)
	i := strings.Index(id, ":")
	return id[:i], id[i+1:]
}

// Supported reports whether the id's namespace can be queried.
func Supported(id string) bool {
	ns, _ := Split(id)
	_, ok := Namespaces[ns]
	return ok
}

// URI expands a namespaced id to its entity URI.
func URI(id string) (string, bool) {
	ns, local := Split(id)
	base, ok := Namespaces[ns]
	if !ok {
		return "", false
	}
	return base + local, true
}

// CompactURI turns an entity URI back into a namespaced id.
func CompactURI(uri string) (string, bool) {
	for ns, base := range Namespaces {
		if strings.HasPrefix(uri, base) {
			return ns + ":" + strings.TrimPrefix(uri, base), true
		}
	}
	return "", false
}

// ParsePoint converts a WKT literal "Point(lon lat)" to [lat, lon].
func ParsePoint(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "Point("); i >= 0 {
		s = s[i+len("Point("):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), ")")
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("parse point %q: want 2 coordinates, got %d", s, len(fields))
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("parse point longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parse point latitude: %w", err)
	}
	return []float64{lat, lon}, nil
}

// WhosOnFirstURL builds the geojson location for a Who's On First id.
func WhosOnFirstURL(id string) string {
	var parts []string
	for i := 0; i < len(id); i += 3 {
		end := i + 3
		if end > len(id) {
			end = len(id)
		}
		parts = append(parts, id[i:end])
	}
	return fmt.Sprintf("https://data.whosonfirst.org/%s/%s.geojson", strings.Join(parts, "/"), id)
}
