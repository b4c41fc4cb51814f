package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsQID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Q220", true},
		{"wd:Q220", true},
		{"jstor:Q5", true},
		{"Q", false},
		{"P31", false},
		{"wd:Q22a", false},
		{"rome", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQID(tt.in))
		})
	}
}

func TestWithNamespace(t *testing.T) {
	assert.Equal(t, "wd:Q1", WithNamespace("Q1"))
	assert.Equal(t, "jstor:Q1", WithNamespace("jstor:Q1"))
	assert.Equal(t, "", WithNamespace(""))
}

func TestURIRoundTrip(t *testing.T) {
	uri, ok := URI("Q220")
	require.True(t, ok)
	assert.Equal(t, "http://www.wikidata.org/entity/Q220", uri)

	id, ok := CompactURI("http://kg.jstor.org/entity/Q9")
	require.True(t, ok)
	assert.Equal(t, "jstor:Q9", id)

	_, ok = URI("foo:Q1")
	assert.False(t, ok)
	assert.False(t, Supported("foo:Q1"))
	assert.True(t, Supported("Q1"))
}

func TestParsePoint(t *testing.T) {
	got, err := ParsePoint("Point(12.5 41.9)")
	require.NoError(t, err)
	assert.Equal(t, []float64{41.9, 12.5}, got)

	_, err = ParsePoint("Point(12.5)")
	assert.Error(t, err)
	_, err = ParsePoint("Point(a b)")
	assert.Error(t, err)
}

func TestWhosOnFirstURL(t *testing.T) {
	assert.Equal(t,
		"https://data.whosonfirst.org/101/752/393/101752393.geojson",
		WhosOnFirstURL("101752393"))
	assert.Equal(t,
		"https://data.whosonfirst.org/856/332/7/8563327.geojson",
		WhosOnFirstURL("8563327"))
}
