package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dgallion1/essayist/internal/stats"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHub reads essays through the repository contents API.
type GitHub struct {
	baseURL    string
	token      string
	httpClient *http.Client
	stats      *stats.Tracker
	log        *slog.Logger
}

func NewGitHub(baseURL, token string, timeout time.Duration, tracker *stats.Tracker, log *slog.Logger) *GitHub {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &GitHub{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		stats:      tracker,
		log:        log,
	}
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
	HTMLURL  string `json:"html_url"`
}

func (g *GitHub) Fetch(ctx context.Context, acct, repo, ref, p string) (*Document, error) {
	for _, candidate := range Candidates(p) {
		doc, err := g.get(ctx, acct, repo, ref, candidate)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("fetch %s/%s%s: %w", acct, repo, p, ErrNotFound)
}

// get returns nil, nil when the file does not exist.
func (g *GitHub) get(ctx context.Context, acct, repo, ref, file string) (doc *Document, err error) {
	start := time.Now()
	defer func() { g.stats.Observe(stats.Source, start, err) }()

	u := fmt.Sprintf("%s/repos/%s/%s/contents%s", g.baseURL, url.PathEscape(acct), url.PathEscape(repo), file)
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github.v3+json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "token "+g.token)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get contents: %w", err)
	}
	defer resp.Body.Close()
	g.log.Debug("github contents", "url", u, "status", resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get contents %s: status %d: %s", file, resp.StatusCode, string(body))
	}

	var out contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode contents: %w", err)
	}
	md, err := base64.StdEncoding.DecodeString(out.Content)
	if err != nil {
		return nil, fmt.Errorf("decode content %s: %w", file, err)
	}
	return &Document{
		Markdown: md,
		Path:     EssayPath(file),
		URL:      u,
		SHA:      out.SHA,
	}, nil
}
