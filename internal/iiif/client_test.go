package iiif

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/essayist/internal/stats"
)

func TestClient_Create(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"@id":"https://iiif.example/abc/manifest.json","label":"Forum","thumbnail":{"@id":"t.jpg"}}`))
	}))
	defer srv.Close()

	tracker := stats.NewTracker(0)
	c := NewClient(srv.URL, 0, tracker)
	m, err := c.Create(context.Background(), Request{"url": "https://img.example/forum.jpg", "label": "Forum", "iiif": "true"})
	require.NoError(t, err)

	assert.Equal(t, "https://iiif.example/abc/manifest.json", m.ID)
	assert.Equal(t, "https://img.example/forum.jpg", got["url"])
	assert.Equal(t, "true", got["iiif"])
	assert.JSONEq(t, `{"@id":"t.jpg"}`, string(m.Thumbnail))
	assert.Equal(t, 1, tracker.Snapshot()[stats.Manifest].Calls)
}

func TestClient_CreateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad image", http.StatusBadGateway)
	}))
	defer srv.Close()

	tracker := stats.NewTracker(0)
	c := NewClient(srv.URL, 0, tracker)
	_, err := c.Create(context.Background(), Request{"url": "x"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "bad image", se.Body)
	assert.Equal(t, 1, tracker.Snapshot()[stats.Manifest].Errors)
}

func TestClient_CreateMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label":"x"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0, nil).Create(context.Background(), Request{})
	assert.Error(t, err)
}
