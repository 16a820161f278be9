package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"photoframe/internal/logging"
	"photoframe/internal/mediatypes"
	"photoframe/internal/metrics"
)

const (
	baiduDefaultClientID     = "hq9yQ9w9kR4YHj1kyYafLygVocobh7Sf"
	baiduDefaultClientSecret = "YH2VpZcFJHYNnV6vLfHQXDBhcE7ZChyE"
	baiduDefaultRoot         = "/apps/photoframe"

	baiduTokenEndpoint      = "https://openapi.baidu.com/oauth/2.0/token"
	baiduFileEndpoint       = "https://pan.baidu.com/rest/2.0/xpan/file"
	baiduMultimediaEndpoint = "https://pan.baidu.com/rest/2.0/xpan/multimedia"
	baiduUploadEndpoint     = "https://d.pcs.baidu.com/rest/2.0/pcs/superfile2"

	baiduTokenRefreshTimeout = 10 * time.Second
	baiduTokenRetryCooldown  = 5 * time.Minute
	baiduListPageLimit       = 200
	baiduCallTimeout         = 60 * time.Second

	// Download endpoints reject requests without the official client UA.
	baiduUserAgent = "pan.baidu.com"
)

// baiduProvider accesses Baidu Netdisk through its OAuth refresh-token API.
//
// Access tokens are cached until 60 seconds before expiry. Concurrent
// refreshes coalesce into one network call. A refresh rejected for an
// expired token or a security policy puts the provider into a 5-minute
// cooldown during which every token request fails fast with the cached
// reason instead of hitting the endpoint again.
type baiduProvider struct {
	cfg      BaiduConfig
	store    ConfigStore
	configID int64
	client   *http.Client

	refreshGroup singleflight.Group

	mu             sync.Mutex
	refreshToken   string
	accessToken    string
	tokenExpiresAt time.Time
	blockedUntil   time.Time
	blockedReason  string
}

func newBaiduProvider(cfg *BaiduConfig, store ConfigStore, configID int64) (*baiduProvider, error) {
	p := &baiduProvider{
		cfg:          *cfg,
		store:        store,
		configID:     configID,
		refreshToken: cfg.RefreshToken,
		client:       &http.Client{Timeout: baiduCallTimeout},
	}
	logging.Info("Baidu storage ready: root=%s", p.root())
	return p, nil
}

func (p *baiduProvider) Kind() Kind {
	return KindBaidu
}

func (p *baiduProvider) clientID() string {
	if p.cfg.ClientID != "" {
		return p.cfg.ClientID
	}
	return baiduDefaultClientID
}

func (p *baiduProvider) clientSecret() string {
	if p.cfg.ClientSecret != "" {
		return p.cfg.ClientSecret
	}
	return baiduDefaultClientSecret
}

func (p *baiduProvider) tokenEndpoint() string {
	if p.cfg.TokenEndpoint != "" {
		return p.cfg.TokenEndpoint
	}
	return baiduTokenEndpoint
}

func (p *baiduProvider) fileEndpoint() string {
	if p.cfg.FileEndpoint != "" {
		return p.cfg.FileEndpoint
	}
	return baiduFileEndpoint
}

func (p *baiduProvider) multimediaEndpoint() string {
	if p.cfg.MultimediaEndpoint != "" {
		return p.cfg.MultimediaEndpoint
	}
	return baiduMultimediaEndpoint
}

func (p *baiduProvider) uploadEndpoint() string {
	if p.cfg.UploadEndpoint != "" {
		return p.cfg.UploadEndpoint
	}
	return baiduUploadEndpoint
}

func (p *baiduProvider) root() string {
	root := p.cfg.RootPath
	if root == "" {
		root = baiduDefaultRoot
	}
	return NormalizeRoot(root)
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// tokenResponse is the OAuth token endpoint payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ensureAccessToken returns a valid cached token or refreshes one. All
// concurrent callers share a single in-flight refresh.
func (p *baiduProvider) ensureAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiresAt) {
		token := p.accessToken
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	v, err, _ := p.refreshGroup.Do("refresh", func() (any, error) {
		return p.refreshAccessToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *baiduProvider) refreshAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if time.Now().Before(p.blockedUntil) {
		reason := p.blockedReason
		p.mu.Unlock()
		if reason == "" {
			reason = "baidu token refresh temporarily blocked"
		}
		metrics.StorageTokenRefreshes.WithLabelValues("blocked").Inc()
		return "", fmt.Errorf("%s", reason)
	}
	previousRefreshToken := p.refreshToken
	p.mu.Unlock()

	attempt := func() (*tokenResponse, string, int, error) {
		refreshCtx, cancel := context.WithTimeout(ctx, baiduTokenRefreshTimeout)
		defer cancel()

		q := url.Values{}
		q.Set("grant_type", "refresh_token")
		q.Set("refresh_token", previousRefreshToken)
		q.Set("client_id", p.clientID())
		q.Set("client_secret", p.clientSecret())

		req, err := http.NewRequestWithContext(refreshCtx, http.MethodGet, p.tokenEndpoint()+"?"+q.Encode(), nil)
		if err != nil {
			return nil, "", 0, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, "", 0, fmt.Errorf("baidu token refresh failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var payload tokenResponse
		_ = json.Unmarshal(body, &payload)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 && payload.AccessToken != "" {
			return &payload, string(body), resp.StatusCode, nil
		}
		return &payload, string(body), resp.StatusCode, errRefreshRejected
	}

	payload, raw, status, err := attempt()
	if err != nil && err != errRefreshRejected {
		metrics.StorageTokenRefreshes.WithLabelValues("error").Inc()
		return "", err
	}

	// The endpoint sometimes omits the rotated refresh_token; one repeat
	// call returns the complete payload.
	if err == nil && payload.RefreshToken == "" {
		payload, raw, status, err = attempt()
		if err != nil && err != errRefreshRejected {
			metrics.StorageTokenRefreshes.WithLabelValues("error").Inc()
			return "", err
		}
	}

	if err == errRefreshRejected {
		merged := strings.ToLower(payload.Error + " " + payload.ErrorDescription + " " + raw)
		now := time.Now()

		if containsAny(merged, "expired_token", "refresh token has been used", "invalid refresh token") {
			reason := "baidu refresh_token is invalid or already used; update the storage config with the latest refresh_token generated from the same client_id/client_secret"
			p.mu.Lock()
			p.blockedUntil = now.Add(baiduTokenRetryCooldown)
			p.blockedReason = reason
			p.mu.Unlock()
			metrics.StorageTokenRefreshes.WithLabelValues("expired").Inc()
			return "", fmt.Errorf("%s", reason)
		}
		if strings.Contains(merged, "trigger security policy") {
			reason := "baidu token refresh blocked by security policy; use your own OAuth client with a matching refresh_token or retry later"
			p.mu.Lock()
			p.blockedUntil = now.Add(baiduTokenRetryCooldown)
			p.blockedReason = reason
			p.mu.Unlock()
			metrics.StorageTokenRefreshes.WithLabelValues("blocked").Inc()
			return "", fmt.Errorf("%s", reason)
		}

		metrics.StorageTokenRefreshes.WithLabelValues("error").Inc()
		detail := payload.ErrorDescription
		if detail == "" {
			detail = payload.Error
		}
		if detail == "" {
			detail = raw
		}
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return "", fmt.Errorf("baidu token refresh failed: HTTP %d - %s", status, detail)
	}

	expiresIn := payload.ExpiresIn - 60
	if expiresIn < 60 {
		expiresIn = 60
	}
	rotated := strings.TrimSpace(payload.RefreshToken)

	p.mu.Lock()
	p.accessToken = payload.AccessToken
	p.tokenExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	if rotated != "" {
		p.refreshToken = rotated
	}
	p.blockedUntil = time.Time{}
	p.blockedReason = ""
	p.mu.Unlock()

	metrics.StorageTokenRefreshes.WithLabelValues("success").Inc()

	if rotated != "" && rotated != previousRefreshToken {
		p.persistRefreshToken(ctx, previousRefreshToken, rotated)
	}
	return payload.AccessToken, nil
}

var errRefreshRejected = fmt.Errorf("baidu token refresh rejected")

// persistRefreshToken writes a rotated refresh token through the settings
// store, compare-and-swap on the previous value so a stale provider never
// clobbers a newer token. Persistence failure is logged, not fatal: the
// in-memory token stays usable for this process.
func (p *baiduProvider) persistRefreshToken(ctx context.Context, previous, latest string) {
	if p.store == nil || previous == "" || latest == "" || previous == latest {
		return
	}
	swapped, err := p.store.CompareAndSwapRefreshToken(ctx, p.configID, previous, latest)
	if err != nil {
		logging.Warn("Failed to persist rotated Baidu refresh_token: %v", err)
		return
	}
	if swapped {
		logging.Info("Persisted rotated Baidu refresh_token into storage config %d", p.configID)
	}
}

// baiduResponse is the xpan API envelope. errno != 0 or any error_code is a
// failure even on HTTP 200.
type baiduResponse struct {
	Errno     int             `json:"errno"`
	Errmsg    string          `json:"errmsg"`
	ErrorCode json.RawMessage `json:"error_code"`
	ErrorMsg  string          `json:"error_msg"`
	UploadID  string          `json:"uploadid"`
	Size      int64           `json:"size"`
	List      []baiduEntry    `json:"list"`
}

type baiduEntry struct {
	FsID           uint64 `json:"fs_id"`
	Path           string `json:"path"`
	ServerFilename string `json:"server_filename"`
	Size           int64  `json:"size"`
	MD5            string `json:"md5"`
	ServerMtime    int64  `json:"server_mtime"`
	IsDir          int    `json:"isdir"`
	DLink          string `json:"dlink"`
}

func parseBaiduResponse(resp *http.Response, action string) (*baiduResponse, error) {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("baidu %s failed: HTTP %d - %s", action, resp.StatusCode, snippet)
	}

	var payload baiduResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("baidu %s failed: invalid JSON response", action)
	}
	if payload.Errno != 0 {
		if payload.Errmsg != "" {
			return nil, fmt.Errorf("baidu %s failed: errno=%d (%s)", action, payload.Errno, payload.Errmsg)
		}
		return nil, fmt.Errorf("baidu %s failed: errno=%d", action, payload.Errno)
	}
	if len(payload.ErrorCode) > 0 && string(payload.ErrorCode) != "null" {
		code := strings.Trim(string(payload.ErrorCode), `"`)
		if payload.ErrorMsg != "" {
			return nil, fmt.Errorf("baidu %s failed: error_code=%s (%s)", action, code, payload.ErrorMsg)
		}
		return nil, fmt.Errorf("baidu %s failed: error_code=%s", action, code)
	}
	return &payload, nil
}

func isBaiduTokenExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "errno=-6", "errno=111", "error_code=111", "Access token invalid")
}

// requestXpan performs an authenticated xpan API call. A token-expired
// error drops the cached access token and retries exactly once.
func (p *baiduProvider) requestXpan(ctx context.Context, endpoint, methodName, httpMethod string, params url.Values, action string) (*baiduResponse, error) {
	payload, err := p.doXpan(ctx, endpoint, methodName, httpMethod, params, action)
	if err != nil && isBaiduTokenExpired(err) {
		p.mu.Lock()
		p.accessToken = ""
		p.tokenExpiresAt = time.Time{}
		p.mu.Unlock()
		return p.doXpan(ctx, endpoint, methodName, httpMethod, params, action)
	}
	return payload, err
}

func (p *baiduProvider) doXpan(ctx context.Context, endpoint, methodName, httpMethod string, params url.Values, action string) (*baiduResponse, error) {
	accessToken, err := p.ensureAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("method", methodName)
	q.Set("access_token", accessToken)

	var req *http.Request
	if httpMethod == http.MethodGet {
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(),
			strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("baidu %s failed: %w", action, err)
	}
	return parseBaiduResponse(resp, action)
}

// listDirectory pages through one directory, 200 entries per call. Some
// deployments want the directory in a path parameter instead of dir, so a
// failed page is retried once with both set.
func (p *baiduProvider) listDirectory(ctx context.Context, absoluteDir string) ([]baiduEntry, error) {
	var items []baiduEntry
	start := 0

	for {
		params := url.Values{}
		params.Set("dir", absoluteDir)
		params.Set("web", "web")
		params.Set("start", strconv.Itoa(start))
		params.Set("limit", strconv.Itoa(baiduListPageLimit))

		payload, err := p.requestXpan(ctx, p.fileEndpoint(), "list", http.MethodGet, params, "list files")
		if err != nil {
			params.Set("path", absoluteDir)
			payload, err = p.requestXpan(ctx, p.fileEndpoint(), "list", http.MethodGet, params, "list files")
			if err != nil {
				return nil, err
			}
		}

		if len(payload.List) == 0 {
			break
		}
		items = append(items, payload.List...)
		if len(payload.List) < baiduListPageLimit {
			break
		}
		start += baiduListPageLimit
	}
	return items, nil
}

func (p *baiduProvider) findEntry(ctx context.Context, absolutePath string) (*baiduEntry, error) {
	parentDir := AbsolutePath(path.Dir(strings.TrimPrefix(absolutePath, "/")))
	baseName := path.Base(absolutePath)

	list, err := p.listDirectory(ctx, parentDir)
	if err != nil {
		return nil, err
	}
	for i := range list {
		entry := &list[i]
		if entry.IsDir == 1 {
			continue
		}
		if entry.Path == absolutePath || entry.ServerFilename == baseName {
			return entry, nil
		}
	}
	return nil, nil
}

func entryToObject(relativeKey string, entry *baiduEntry) *Object {
	obj := &Object{
		Key:  relativeKey,
		Size: entry.Size,
		ETag: entry.MD5,
	}
	if entry.ServerMtime > 0 {
		obj.LastModified = time.Unix(entry.ServerMtime, 0)
	}
	return obj
}

func (p *baiduProvider) Create(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindBaidu, "create", start, err) }()

	ctx, cancel := withCallTimeout(ctx, baiduCallTimeout)
	defer cancel()

	rooted := WithRoot(p.root(), key)
	absolutePath := AbsolutePath(rooted)

	sum := md5.Sum(data)
	fileMD5 := hex.EncodeToString(sum[:])
	blockList, err := json.Marshal([]string{fileMD5})
	if err != nil {
		return nil, err
	}

	// Stage 1: reserve the upload session.
	params := url.Values{}
	params.Set("path", absolutePath)
	params.Set("size", strconv.Itoa(len(data)))
	params.Set("isdir", "0")
	params.Set("autoinit", "1")
	params.Set("rtype", "3")
	params.Set("block_list", string(blockList))

	precreate, err := p.requestXpan(ctx, p.fileEndpoint(), "precreate", http.MethodPost, params, "precreate file")
	if err != nil {
		return nil, err
	}
	if precreate.UploadID == "" {
		err = fmt.Errorf("baidu upload failed: missing uploadid from precreate")
		return nil, err
	}

	// Stage 2: upload the single block to the PCS data endpoint.
	if err = p.uploadBlock(ctx, absolutePath, precreate.UploadID, data, contentType); err != nil {
		return nil, err
	}

	// Stage 3: commit the file.
	params = url.Values{}
	params.Set("path", absolutePath)
	params.Set("size", strconv.Itoa(len(data)))
	params.Set("isdir", "0")
	params.Set("uploadid", precreate.UploadID)
	params.Set("rtype", "3")
	params.Set("block_list", string(blockList))

	created, err := p.requestXpan(ctx, p.fileEndpoint(), "create", http.MethodPost, params, "create file")
	if err != nil {
		return nil, err
	}

	size := created.Size
	if size == 0 {
		size = int64(len(data))
	}
	return &Object{Key: rooted, Size: size, ETag: fileMD5, LastModified: time.Now()}, nil
}

func (p *baiduProvider) uploadBlock(ctx context.Context, absolutePath, uploadID string, data []byte, contentType string) error {
	accessToken, err := p.ensureAccessToken(ctx)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("method", "upload")
	q.Set("type", "tmpfile")
	q.Set("access_token", accessToken)
	q.Set("path", absolutePath)
	q.Set("uploadid", uploadID)
	q.Set("partseq", "0")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", path.Base(absolutePath))
	if err != nil {
		return err
	}
	if _, err = part.Write(data); err != nil {
		return err
	}
	if err = form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadEndpoint()+"?"+q.Encode(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("baidu upload chunk failed: %w", err)
	}
	_, err = parseBaiduResponse(resp, "upload chunk")
	return err
}

func (p *baiduProvider) Delete(ctx context.Context, key string) error {
	start := time.Now()
	var err error
	defer func() { record(KindBaidu, "delete", start, err) }()

	ctx, cancel := withCallTimeout(ctx, baiduCallTimeout)
	defer cancel()

	absolutePath := AbsolutePath(WithRoot(p.root(), key))
	filelist, err := json.Marshal([]map[string]string{{"path": absolutePath}})
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("opera", "delete")
	params.Set("async", "0")
	params.Set("filelist", string(filelist))

	_, err = p.requestXpan(ctx, p.fileEndpoint(), "filemanager", http.MethodPost, params, "delete file")
	return err
}

func (p *baiduProvider) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { record(KindBaidu, "get", start, err) }()

	ctx, cancel := withCallTimeout(ctx, baiduCallTimeout)
	defer cancel()

	absolutePath := AbsolutePath(WithRoot(p.root(), key))
	entry, err := p.findEntry(ctx, absolutePath)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.FsID == 0 {
		return nil, nil
	}

	fsids, err := json.Marshal([]uint64{entry.FsID})
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fsids", string(fsids))
	params.Set("dlink", "1")

	payload, err := p.requestXpan(ctx, p.multimediaEndpoint(), "filemetas", http.MethodGet, params, "get dlink")
	if err != nil {
		return nil, err
	}
	if len(payload.List) == 0 || payload.List[0].DLink == "" {
		return nil, nil
	}
	dlink := payload.List[0].DLink

	accessToken, err := p.ensureAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(dlink, "access_token=") {
		sep := "?"
		if strings.Contains(dlink, "?") {
			sep = "&"
		}
		dlink += sep + "access_token=" + url.QueryEscape(accessToken)
	}

	// The dlink usually 302s to a data node; resolve it with a HEAD first
	// so the GET goes straight to the final host.
	downloadURL := dlink
	if redirected := p.resolveRedirect(ctx, dlink); redirected != "" {
		downloadURL = redirected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", baiduUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("baidu download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}
	return io.ReadAll(resp.Body)
}

// resolveRedirect issues a HEAD without following redirects and returns the
// Location target, or empty when there is none.
func (p *baiduProvider) resolveRedirect(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", baiduUserAgent)

	noRedirect := &http.Client{
		Timeout: p.client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	return resp.Header.Get("Location")
}

func (p *baiduProvider) FileMeta(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindBaidu, "meta", start, err) }()

	ctx, cancel := withCallTimeout(ctx, baiduCallTimeout)
	defer cancel()

	rooted := WithRoot(p.root(), key)
	entry, err := p.findEntry(ctx, AbsolutePath(rooted))
	if err != nil || entry == nil {
		return nil, err
	}
	return entryToObject(rooted, entry), nil
}

func (p *baiduProvider) ListAll(ctx context.Context) ([]Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindBaidu, "list", start, err) }()

	var objects []Object
	var walk func(absoluteDir string) error
	walk = func(absoluteDir string) error {
		list, err := p.listDirectory(ctx, absoluteDir)
		if err != nil {
			return err
		}
		for i := range list {
			entry := &list[i]
			if entry.Path == "" {
				continue
			}
			if entry.IsDir == 1 {
				if err := walk(entry.Path); err != nil {
					return err
				}
				continue
			}
			objects = append(objects, *entryToObject(strings.TrimLeft(entry.Path, "/"), entry))
		}
		return nil
	}

	err = walk(AbsolutePath(p.root()))
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (p *baiduProvider) ListImages(ctx context.Context) ([]Object, error) {
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

// PublicURL routes through the internal image proxy or a configured CDN
// base, with each path segment escaped.
func (p *baiduProvider) PublicURL(key string) string {
	rooted := WithRoot(p.root(), key)
	segments := strings.Split(rooted, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	encoded := strings.Join(segments, "/")

	if cdn := strings.TrimRight(p.cfg.CDNURL, "/"); cdn != "" {
		return cdn + "/" + encoded
	}
	return "/image/" + encoded
}
