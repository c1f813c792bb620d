// internal/vcs/github/client.go
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ghusers/internal/errors"
	"ghusers/internal/vcs"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Owner      string
	Repo       string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements vcs.Store on top of the GitHub REST API.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ vcs.Store = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: time.Second * 30,
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		owner:      opts.Owner,
		repo:       opts.Repo,
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

type commitResponse struct {
	SHA string `json:"sha"`
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	GitURL   string `json:"git_url"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type refResponse struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type gitCommitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

func (c *Client) GetRef(ctx context.Context, name string) (string, error) {
	var out commitResponse
	err := c.do(ctx, http.MethodGet, c.repoURL("commits", url.PathEscape(name)), nil, &out)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok {
			switch apiErr.Status {
			case http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusConflict:
				return "", errors.RefNotFound(name)
			}
		}
		return "", c.classify("getting ref "+name, err)
	}
	if out.SHA == "" {
		return "", errors.Internal("getting ref "+name, fmt.Errorf("empty sha in response"))
	}
	return out.SHA, nil
}

func (c *Client) CreateRef(ctx context.Context, name, fromToken string) error {
	body := createRefRequest{
		Ref: "refs/heads/" + name,
		SHA: fromToken,
	}
	err := c.do(ctx, http.MethodPost, c.repoURL("git", "refs"), body, nil)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.Status == http.StatusUnprocessableEntity {
			if strings.Contains(strings.ToLower(apiErr.Message), "already exists") {
				return errors.RefConflict(name)
			}
			return errors.RefNotFound(fromToken)
		}
		return c.classify("creating ref "+name, err)
	}
	return nil
}

func (c *Client) ReadFile(ctx context.Context, path, ref string) (*vcs.File, error) {
	endpoint := c.contentsURL(path) + "?ref=" + url.QueryEscape(ref)

	var out contentResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.Status == http.StatusNotFound {
			return nil, errors.FileNotFound(path, ref)
		}
		return nil, c.classify("reading "+path, err)
	}
	if out.Type != "" && out.Type != "file" {
		return nil, errors.Internal("reading "+path, fmt.Errorf("path is a %s, not a file", out.Type))
	}

	content := out.Content
	if content == "" && out.GitURL != "" {
		// Files above the contents API size limit come back without inline
		// content; the blob endpoint still serves them.
		var blob blobResponse
		if err := c.do(ctx, http.MethodGet, out.GitURL, nil, &blob); err != nil {
			return nil, c.classify("reading blob for "+path, err)
		}
		content = blob.Content
	}

	return &vcs.File{
		Content: []byte(content),
		Token:   out.SHA,
	}, nil
}

func (c *Client) WriteFile(ctx context.Context, req vcs.WriteRequest) error {
	body := putContentRequest{
		Message: req.Message,
		Content: string(req.Content),
		SHA:     req.ExpectedToken,
		Branch:  req.Ref,
	}
	err := c.do(ctx, http.MethodPut, c.contentsURL(req.Path), body, nil)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok {
			switch {
			case apiErr.Status == http.StatusConflict:
				return errors.WriteConflict(req.Path, req.Ref)
			case apiErr.Status == http.StatusUnprocessableEntity && req.ExpectedToken == "":
				// The file appeared after we saw it missing.
				return errors.WriteConflict(req.Path, req.Ref)
			case apiErr.Status == http.StatusNotFound:
				return errors.RefNotFound(req.Ref)
			}
		}
		return c.classify("writing "+req.Path, err)
	}
	return nil
}

// MergeRef moves base to a commit carrying message on top of head. The ref
// update is never forced, so GitHub refuses it with 422 unless head descends
// from the current tip of base. Any commit that landed on base after head was
// branched therefore turns into a MergeConflict, even when both sides wrote
// identical content.
func (c *Client) MergeRef(ctx context.Context, base, head, message string) error {
	op := "merging " + head + " into " + base

	var headRef refResponse
	err := c.do(ctx, http.MethodGet, c.repoURL("git", "ref", "heads", url.PathEscape(head)), nil, &headRef)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.Status == http.StatusNotFound {
			return errors.RefNotFound(head)
		}
		return c.classify(op, err)
	}
	if headRef.Object.SHA == "" {
		return errors.Internal(op, fmt.Errorf("empty sha for ref %s", head))
	}

	var headCommit gitCommitResponse
	if err := c.do(ctx, http.MethodGet, c.repoURL("git", "commits", headRef.Object.SHA), nil, &headCommit); err != nil {
		return c.classify(op, err)
	}

	var merge gitCommitResponse
	commit := createCommitRequest{
		Message: message,
		Tree:    headCommit.Tree.SHA,
		Parents: []string{headRef.Object.SHA},
	}
	if err := c.do(ctx, http.MethodPost, c.repoURL("git", "commits"), commit, &merge); err != nil {
		return c.classify(op, err)
	}

	update := updateRefRequest{SHA: merge.SHA, Force: false}
	err = c.do(ctx, http.MethodPatch, c.repoURL("git", "refs", "heads", url.PathEscape(base)), update, nil)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok {
			switch {
			case apiErr.Status == http.StatusUnprocessableEntity &&
				strings.Contains(strings.ToLower(apiErr.Message), "does not exist"):
				return errors.RefNotFound(base)
			case apiErr.Status == http.StatusUnprocessableEntity, apiErr.Status == http.StatusConflict:
				return errors.MergeConflict(base, head)
			case apiErr.Status == http.StatusNotFound:
				return errors.RefNotFound(base)
			}
		}
		return c.classify(op, err)
	}
	return nil
}

func (c *Client) DeleteRef(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, c.repoURL("git", "refs", "heads", name), nil, nil)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok {
			switch apiErr.Status {
			case http.StatusNotFound, http.StatusUnprocessableEntity:
				return nil
			}
		}
		return c.classify("deleting ref "+name, err)
	}
	return nil
}

func (c *Client) repoURL(parts ...string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s",
		c.baseURL,
		url.PathEscape(c.owner),
		url.PathEscape(c.repo),
		strings.Join(parts, "/"),
	)
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.repoURL("contents", strings.Join(segments, "/"))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Internal("marshaling request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Internal("building request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Transient(fmt.Sprintf("%s %s", method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Transient("reading response body", err)
	}

	c.logger.Debug("github request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{
			Status:      resp.StatusCode,
			RateLimited: resp.Header.Get("X-RateLimit-Remaining") == "0",
		}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Internal("decoding response", err)
		}
	}
	return nil
}
