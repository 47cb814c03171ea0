package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

const (
	perPage        = 100
	fallbackBranch = "main"
	userAgent      = "portfolio-sync"
)

// ErrNotFound matches any 404 from the API. Callers treat it as "skip", not "abort".
var ErrNotFound = errors.New("github: not found")

// RateLimitError is returned when the API refuses a request because the quota is spent.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limit exceeded, resets at %s", e.Reset.UTC().Format(time.RFC3339))
}

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Status     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: %s (%s)", e.Status, e.Path)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Repo is the subset of the repository payload the sync consumes.
type Repo struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Language        string   `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	Topics          []string `json:"topics"`
	DefaultBranch   string   `json:"default_branch"`
	Fork            bool     `json:"fork"`
	Private         bool     `json:"private"`
	UpdatedAt       string   `json:"updated_at"`
	CreatedAt       string   `json:"created_at"`
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// RateLimitInfo is the quota state reported by the most recent response.
type RateLimitInfo struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// Client is the GitHub surface used by the sync service.
type Client interface {
	ListUserRepos(ctx context.Context, username string) ([]Repo, error)
	DefaultBranch(ctx context.Context, fullName string) (string, error)
	Readme(ctx context.Context, fullName, branch string) (string, error)
	RateLimit() RateLimitInfo
}

// Config configures a RESTClient. Zero values fall back to defaults.
type Config struct {
	BaseURL string
	// Token switches repo listing to the authenticated user's own repos, private included.
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	// Transport is the base round tripper; tests inject httptest transports here.
	Transport http.RoundTripper
	// OnRateLimit is called after every response with the updated quota.
	OnRateLimit func(RateLimitInfo)
}

// RESTClient implements Client over the GitHub REST API.
type RESTClient struct {
	baseURL     string
	token       string
	http        *http.Client
	limiter     *rate.Limiter
	onRateLimit func(RateLimitInfo)

	mu        sync.Mutex
	rateLimit RateLimitInfo
}

// NewClient returns a RESTClient. With a token, requests are authenticated
// through an oauth2 static token source.
func NewClient(cfg Config) *RESTClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	return &RESTClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		http:        &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		onRateLimit: cfg.OnRateLimit,
		// Unauthenticated quota until the first response says otherwise.
		rateLimit: RateLimitInfo{Remaining: 60},
	}
}

// SplitFullName splits "owner/name".
func SplitFullName(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository name %q: want owner/name", fullName)
	}
	return owner, repo, nil
}

func repoPath(fullName string) (string, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return "", err
	}
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo), nil
}

// ListUserRepos pages through all repositories until an empty page comes back.
func (c *RESTClient) ListUserRepos(ctx context.Context, username string) ([]Repo, error) {
	path := "/users/" + url.PathEscape(username) + "/repos"
	if c.token != "" {
		path = "/user/repos"
	}

	var repos []Repo
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("sort", "updated")
		if c.token != "" {
			q.Set("visibility", "all")
			q.Set("affiliation", "owner")
		}

		var batch []Repo
		if err := c.get(ctx, path, q, &batch); err != nil {
			return nil, fmt.Errorf("list repos page %d: %w", page, err)
		}
		if len(batch) == 0 {
			return repos, nil
		}
		repos = append(repos, batch...)
	}
}

// DefaultBranch returns the repository's default branch. A 404 yields an
// error matching ErrNotFound.
func (c *RESTClient) DefaultBranch(ctx context.Context, fullName string) (string, error) {
	path, err := repoPath(fullName)
	if err != nil {
		return "", err
	}

	var r Repo
	if err := c.get(ctx, path, nil, &r); err != nil {
		return "", err
	}
	if r.DefaultBranch == "" {
		return fallbackBranch, nil
	}
	return r.DefaultBranch, nil
}

// Readme returns the decoded README at branch. A missing README yields an
// error matching ErrNotFound.
func (c *RESTClient) Readme(ctx context.Context, fullName, branch string) (string, error) {
	path, err := repoPath(fullName)
	if err != nil {
		return "", err
	}

	var q url.Values
	if branch != "" {
		q = url.Values{"ref": {branch}}
	}

	var content contentResponse
	if err := c.get(ctx, path+"/readme", q, &content); err != nil {
		return "", err
	}
	if content.Encoding != "base64" {
		return content.Content, nil
	}

	// GitHub wraps base64 payloads at 60 columns.
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(content.Content)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode readme for %s: %w", fullName, err)
	}
	return string(decoded), nil
}

// RateLimit returns the quota reported by the most recent response.
func (c *RESTClient) RateLimit() RateLimitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimit
}

func (c *RESTClient) get(ctx context.Context, path string, query url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	info := c.recordRateLimit(resp.Header)

	if resp.StatusCode == http.StatusForbidden && info.Remaining == 0 {
		return &RateLimitError{Reset: info.Reset}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Path: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *RESTClient) recordRateLimit(h http.Header) RateLimitInfo {
	c.mu.Lock()
	if v, err := strconv.Atoi(h.Get("X-RateLimit-Remaining")); err == nil {
		c.rateLimit.Remaining = v
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		c.rateLimit.Reset = time.Unix(v, 0)
	}
	info := c.rateLimit
	c.mu.Unlock()

	if c.onRateLimit != nil {
		c.onRateLimit(info)
	}
	return info
}
