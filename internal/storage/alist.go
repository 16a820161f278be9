package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"photoframe/internal/logging"
	"photoframe/internal/mediatypes"
)

const alistCallTimeout = 60 * time.Second

// Default API paths; each can be overridden per deployment in AListConfig.
const (
	alistDefaultLoginPath    = "/api/auth/login"
	alistDefaultUploadPath   = "/api/fs/put"
	alistDefaultDeletePath   = "/api/fs/remove"
	alistDefaultMetaPath     = "/api/fs/get"
	alistDefaultListPath     = "/api/fs/list"
	alistDefaultPathField    = "path"
	alistDownloadUserAgent   = "pan.baidu.com"
	alistSuccessResponseCode = 200
)

// alistProvider speaks the AList HTTP API, which OpenList servers also
// implement. Sessions authenticate with either a static token or a
// username/password login exchange whose token is cached until the server
// rejects it.
type alistProvider struct {
	kind   Kind
	cfg    AListConfig
	client *http.Client

	tokenMu sync.Mutex
	token   string
}

func newAListProvider(kind Kind, cfg *AListConfig) (*alistProvider, error) {
	p := &alistProvider{
		kind:   kind,
		cfg:    *cfg,
		client: &http.Client{Timeout: alistCallTimeout},
	}
	p.cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	logging.Info("%s storage ready: %s root=%s", kind, p.cfg.BaseURL, cfg.RootPath)
	return p, nil
}

func (p *alistProvider) Kind() Kind {
	return p.kind
}

func (p *alistProvider) pathField() string {
	if p.cfg.PathField != "" {
		return p.cfg.PathField
	}
	return alistDefaultPathField
}

func (p *alistProvider) root() string {
	return NormalizeRoot(p.cfg.RootPath)
}

// alistResponse is the API envelope; code 200 signals success regardless of
// the HTTP status.
type alistResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// alistNode is a file entry as returned by the meta and list endpoints.
type alistNode struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Modified time.Time `json:"modified"`
	ETag     string    `json:"etag"`
	RawURL   string    `json:"raw_url"`
	Sign     string    `json:"sign"`
	Content  []alistNode `json:"content"`
}

// parseResponse enforces the envelope contract: HTTP failure or a non-200
// envelope code is an error, an empty body is not.
func parseResponse(resp *http.Response, action string) (*alistResponse, error) {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("alist %s failed: HTTP %d %s", action, resp.StatusCode, snippet)
	}
	if len(body) == 0 {
		return nil, nil
	}

	var payload alistResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("alist %s failed: invalid JSON response", action)
	}
	if payload.Code != 0 && payload.Code != alistSuccessResponseCode {
		msg := payload.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("alist %s failed: [%d] %s", action, payload.Code, msg)
	}
	return &payload, nil
}

func (p *alistProvider) loginWithPassword(ctx context.Context) (string, error) {
	username := strings.TrimSpace(p.cfg.Username)
	if username == "" || p.cfg.Password == "" {
		return "", nil
	}

	loginPath := p.cfg.LoginEndpoint
	if loginPath == "" {
		loginPath = alistDefaultLoginPath
	}

	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": p.cfg.Password,
		"otp_code": p.cfg.OTPCode,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("alist login request failed: %w", err)
	}
	payload, err := parseResponse(resp, "login")
	if err != nil {
		return "", err
	}

	var data struct {
		Token string `json:"token"`
	}
	if payload != nil && len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return "", fmt.Errorf("alist login failed: malformed token payload")
		}
	}
	if data.Token == "" {
		return "", fmt.Errorf("alist login failed: token missing in response")
	}
	return data.Token, nil
}

// ensureAuthToken returns the cached session token, the configured static
// token, or a fresh login result, in that order.
func (p *alistProvider) ensureAuthToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.token != "" {
		return p.token, nil
	}
	if t := strings.TrimSpace(p.cfg.Token); t != "" {
		p.token = t
		return t, nil
	}

	token, err := p.loginWithPassword(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("alist auth requires token or username/password credentials")
	}
	p.token = token
	return token, nil
}

func (p *alistProvider) invalidateToken() {
	p.tokenMu.Lock()
	p.token = ""
	p.tokenMu.Unlock()
}

// request performs an authenticated API call. A 401 triggers exactly one
// re-login and retry, and only when the token came from a password login;
// a static token cannot be refreshed so its 401 is terminal.
func (p *alistProvider) request(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	token, err := p.ensureAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	do := func(authToken string) (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Authorization", authToken)
		return p.client.Do(req)
	}

	resp, err := do(token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && p.cfg.Token == "" && p.cfg.Username != "" && p.cfg.Password != "" {
		resp.Body.Close()
		p.invalidateToken()
		refreshed, err := p.ensureAuthToken(ctx)
		if err != nil {
			return nil, err
		}
		return do(refreshed)
	}
	return resp, nil
}

func (p *alistProvider) Create(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(p.kind, "create", start, err) }()

	ctx, cancel := withCallTimeout(ctx, alistCallTimeout)
	defer cancel()

	rooted := WithRoot(p.root(), key)
	uploadPath := p.cfg.UploadEndpoint
	if uploadPath == "" {
		uploadPath = alistDefaultUploadPath
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := p.request(ctx, http.MethodPut, uploadPath, data, map[string]string{
		"Content-Type":   contentType,
		"Content-Length": strconv.Itoa(len(data)),
		// The server expects the destination as a URL-encoded header on
		// stream uploads.
		"File-Path": url.QueryEscape(AbsolutePath(rooted)),
	})
	if err != nil {
		return nil, err
	}
	if _, err = parseResponse(resp, "upload"); err != nil {
		return nil, err
	}

	meta, metaErr := p.fileMeta(ctx, rooted, false)
	if metaErr == nil && meta != nil {
		return &meta.Object, nil
	}
	return &Object{Key: rooted, Size: int64(len(data)), LastModified: time.Now()}, nil
}

func (p *alistProvider) Delete(ctx context.Context, key string) error {
	start := time.Now()
	var err error
	defer func() { record(p.kind, "delete", start, err) }()

	ctx, cancel := withCallTimeout(ctx, alistCallTimeout)
	defer cancel()

	deletePath := p.cfg.DeleteEndpoint
	if deletePath == "" {
		deletePath = alistDefaultDeletePath
	}

	rooted := strings.TrimLeft(WithRoot(p.root(), key), "/")
	dir := p.root()
	name := rooted
	if i := strings.LastIndex(rooted, "/"); i >= 0 {
		dir = rooted[:i]
		name = rooted[i+1:]
	}

	body, err := json.Marshal(map[string]any{
		"dir":   AbsolutePath(dir),
		"names": []string{name},
	})
	if err != nil {
		return err
	}

	resp, err := p.request(ctx, http.MethodPost, deletePath, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return err
	}
	_, err = parseResponse(resp, "remove")
	return err
}

func (p *alistProvider) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { record(p.kind, "get", start, err) }()

	ctx, cancel := withCallTimeout(ctx, alistCallTimeout)
	defer cancel()

	rooted := WithRoot(p.root(), key)

	// Deployments can expose a direct download endpoint; prefer it.
	if p.cfg.DownloadEndpoint != "" {
		path := fmt.Sprintf("%s?%s=%s", p.cfg.DownloadEndpoint,
			url.QueryEscape(p.pathField()), url.QueryEscape(rooted))
		resp, reqErr := p.request(ctx, http.MethodGet, path, nil, nil)
		if reqErr != nil {
			err = reqErr
			return nil, reqErr
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil
		}
		return io.ReadAll(resp.Body)
	}

	// Otherwise resolve the object's raw_url with a cache-busting meta call
	// and fall back to the /d path with the signed query.
	meta, err := p.fileMeta(ctx, rooted, true)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	if meta.RawURL != "" {
		if data := p.fetchRawURL(ctx, meta.RawURL); data != nil {
			return data, nil
		}
	}

	downloadURL := p.cfg.BaseURL + "/d" + AbsolutePath(rooted)
	if meta.Sign != "" {
		downloadURL += "?sign=" + url.QueryEscape(meta.Sign)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		logging.Warn("AList /d fetch failed for %s: %v", rooted, err)
		err = nil
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}
	return io.ReadAll(resp.Body)
}

func (p *alistProvider) fetchRawURL(ctx context.Context, rawURL string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", alistDownloadUserAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		logging.Warn("AList raw_url fetch failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}

// alistMeta couples the normalized object with the download hints the meta
// endpoint returns alongside it.
type alistMeta struct {
	Object Object
	RawURL string
	Sign   string
}

func (p *alistProvider) fileMeta(ctx context.Context, rooted string, refresh bool) (*alistMeta, error) {
	metaPath := p.cfg.MetaEndpoint
	if metaPath == "" {
		metaPath = alistDefaultMetaPath
	}

	body, err := json.Marshal(map[string]any{
		p.pathField(): AbsolutePath(rooted),
		"password":    "",
		"page":        1,
		"per_page":    0,
		"refresh":     refresh,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.request(ctx, http.MethodPost, metaPath, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}
	payload, err := parseResponse(resp, "get metadata")
	if err != nil {
		return nil, err
	}
	if payload == nil || len(payload.Data) == 0 || string(payload.Data) == "null" {
		return nil, nil
	}

	var node alistNode
	if err := json.Unmarshal(payload.Data, &node); err != nil {
		return nil, fmt.Errorf("alist get metadata failed: malformed node payload")
	}

	return &alistMeta{
		Object: Object{
			Key:          rooted,
			Size:         node.Size,
			ETag:         node.ETag,
			LastModified: node.Modified,
		},
		RawURL: node.RawURL,
		Sign:   node.Sign,
	}, nil
}

func (p *alistProvider) FileMeta(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(p.kind, "meta", start, err) }()

	ctx, cancel := withCallTimeout(ctx, alistCallTimeout)
	defer cancel()

	meta, err := p.fileMeta(ctx, WithRoot(p.root(), key), false)
	if err != nil || meta == nil {
		return nil, err
	}
	return &meta.Object, nil
}

func (p *alistProvider) ListAll(ctx context.Context) ([]Object, error) {
	start := time.Now()
	var err error
	defer func() { record(p.kind, "list", start, err) }()

	ctx, cancel := withCallTimeout(ctx, alistCallTimeout)
	defer cancel()

	listPath := p.cfg.ListEndpoint
	if listPath == "" {
		listPath = alistDefaultListPath
	}
	root := p.root()

	body, err := json.Marshal(map[string]any{
		p.pathField(): AbsolutePath(root),
		"password":    "",
		"page":        1,
		"per_page":    0,
		"refresh":     false,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.request(ctx, http.MethodPost, listPath, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}
	payload, err := parseResponse(resp, "list files")
	if err != nil {
		return nil, err
	}
	if payload == nil || len(payload.Data) == 0 {
		return nil, nil
	}

	var data alistNode
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, fmt.Errorf("alist list files failed: malformed payload")
	}

	objects := make([]Object, 0, len(data.Content))
	for _, item := range data.Content {
		key := strings.TrimLeft(item.Path, "/")
		if key == "" {
			if item.Name == "" {
				continue
			}
			key = item.Name
			if root != "" {
				key = root + "/" + item.Name
			}
		}
		objects = append(objects, Object{
			Key:          key,
			Size:         item.Size,
			ETag:         item.ETag,
			LastModified: item.Modified,
		})
	}
	return objects, nil
}

func (p *alistProvider) ListImages(ctx context.Context) ([]Object, error) {
	all, err := p.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	images := all[:0:0]
	for _, obj := range all {
		if mediatypes.IsImageKey(obj.Key) {
			images = append(images, obj)
		}
	}
	return images, nil
}

// PublicURL routes through the internal image proxy unless a CDN base is
// configured; the host's own URLs are signed and short-lived.
func (p *alistProvider) PublicURL(key string) string {
	rooted := WithRoot(p.root(), key)
	if cdn := strings.TrimRight(p.cfg.CDNURL, "/"); cdn != "" {
		return cdn + "/" + rooted
	}
	return "/image/" + rooted
}
