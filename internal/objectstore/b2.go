// Package objectstore stores raw uploaded files in Backblaze B2 using the
// native b2api endpoints.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout = 60 * time.Second

	// DefaultURLTTL is how long a download authorization stays valid.
	DefaultURLTTL = time.Hour
)

// Object is a stored blob's identity in the bucket.
type Object struct {
	// StorageID is the backend file id, needed for deletion.
	StorageID string
	// URL is an authorized download URL minted at store time.
	URL string
}

// B2 is a client for a single Backblaze B2 bucket. Account authorization
// happens lazily on first use and is refreshed when it expires.
type B2 struct {
	baseURL        string
	keyID          string
	applicationKey string
	bucket         string
	httpClient     *http.Client

	mu       sync.Mutex
	session  *session
	bucketID string
}

// session holds the short-lived credentials from b2_authorize_account.
type session struct {
	token       string
	apiURL      string
	downloadURL string
}

// NewB2 creates a client for the named bucket. baseURL is the authorization
// endpoint host, normally https://api.backblazeb2.com.
func NewB2(baseURL, keyID, applicationKey, bucket string) *B2 {
	return &B2{
		baseURL:        strings.TrimRight(baseURL, "/"),
		keyID:          keyID,
		applicationKey: applicationKey,
		bucket:         bucket,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// authorize obtains (or reuses) an account session and the bucket id.
func (b *B2) authorize(ctx context.Context) (*session, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return b.session, b.bucketID, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/b2api/v2/b2_authorize_account", nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating authorize request: %w", err)
	}
	req.SetBasicAuth(b.keyID, b.applicationKey)

	var auth struct {
		AuthorizationToken string `json:"authorizationToken"`
		APIURL             string `json:"apiUrl"`
		DownloadURL        string `json:"downloadUrl"`
		AccountID          string `json:"accountId"`
	}
	if err := b.doJSON(req, &auth); err != nil {
		return nil, "", fmt.Errorf("authorizing account: %w", err)
	}

	s := &session{
		token:       auth.AuthorizationToken,
		apiURL:      strings.TrimRight(auth.APIURL, "/"),
		downloadURL: strings.TrimRight(auth.DownloadURL, "/"),
	}

	bucketID, err := b.lookupBucket(ctx, s, auth.AccountID)
	if err != nil {
		return nil, "", err
	}

	b.session = s
	b.bucketID = bucketID
	return s, bucketID, nil
}

func (b *B2) lookupBucket(ctx context.Context, s *session, accountID string) (string, error) {
	var resp struct {
		Buckets []struct {
			BucketID   string `json:"bucketId"`
			BucketName string `json:"bucketName"`
		} `json:"buckets"`
	}
	payload := map[string]any{"accountId": accountID, "bucketName": b.bucket}
	if err := b.call(ctx, s, "b2_list_buckets", payload, &resp); err != nil {
		return "", fmt.Errorf("listing buckets: %w", err)
	}
	for _, bk := range resp.Buckets {
		if bk.BucketName == b.bucket {
			return bk.BucketID, nil
		}
	}
	return "", fmt.Errorf("bucket %q not found", b.bucket)
}

// call posts a JSON payload to a b2api operation on the session's API host.
func (b *B2) call(ctx context.Context, s *session, op string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/b2api/v2/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Authorization", s.token)
	req.Header.Set("Content-Type", "application/json")
	return b.doJSON(req, out)
}

func (b *B2) doJSON(req *http.Request, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Session expired; drop it so the next call re-authorizes.
		b.mu.Lock()
		b.session = nil
		b.mu.Unlock()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Put uploads data under key and returns the stored object's identity,
// including an authorized download URL valid for DefaultURLTTL.
func (b *B2) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	s, bucketID, err := b.authorize(ctx)
	if err != nil {
		return nil, err
	}

	var upload struct {
		UploadURL          string `json:"uploadUrl"`
		AuthorizationToken string `json:"authorizationToken"`
	}
	if err := b.call(ctx, s, "b2_get_upload_url", map[string]any{"bucketId": bucketID}, &upload); err != nil {
		return nil, fmt.Errorf("getting upload url: %w", err)
	}

	sum := sha1.Sum(data)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upload.UploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", upload.AuthorizationToken)
	req.Header.Set("X-Bz-File-Name", escapeKey(key))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bz-Content-Sha1", hex.EncodeToString(sum[:]))
	req.ContentLength = int64(len(data))

	var uploaded struct {
		FileID string `json:"fileId"`
	}
	if err := b.doJSON(req, &uploaded); err != nil {
		return nil, fmt.Errorf("uploading %q: %w", key, err)
	}

	downloadURL, err := b.AuthorizedURL(ctx, key, DefaultURLTTL)
	if err != nil {
		return nil, fmt.Errorf("authorizing download for %q: %w", key, err)
	}
	return &Object{StorageID: uploaded.FileID, URL: downloadURL}, nil
}

// Get downloads the blob stored under key.
func (b *B2) Get(ctx context.Context, key string) ([]byte, error) {
	s, _, err := b.authorize(ctx)
	if err != nil {
		return nil, err
	}

	rawURL := s.downloadURL + "/file/" + url.PathEscape(b.bucket) + "/" + escapeKey(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("Authorization", s.token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading download for %q: %w", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %q: unexpected status %d", key, resp.StatusCode)
	}
	return body, nil
}

// AuthorizedURL mints a fresh download URL for key that stays valid for ttl.
func (b *B2) AuthorizedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s, bucketID, err := b.authorize(ctx)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	var auth struct {
		AuthorizationToken string `json:"authorizationToken"`
	}
	payload := map[string]any{
		"bucketId":               bucketID,
		"fileNamePrefix":         key,
		"validDurationInSeconds": int(ttl.Seconds()),
	}
	if err := b.call(ctx, s, "b2_get_download_authorization", payload, &auth); err != nil {
		return "", fmt.Errorf("getting download authorization for %q: %w", key, err)
	}

	return s.downloadURL + "/file/" + url.PathEscape(b.bucket) + "/" + escapeKey(key) +
		"?Authorization=" + url.QueryEscape(auth.AuthorizationToken), nil
}

// escapeKey percent-encodes each path segment of a file name while keeping
// the separating slashes literal, as B2 expects.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Delete removes a stored file version. storageID is the backend file id
// returned by Put.
func (b *B2) Delete(ctx context.Context, storageID, key string) error {
	s, _, err := b.authorize(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{"fileId": storageID, "fileName": key}
	if err := b.call(ctx, s, "b2_delete_file_version", payload, nil); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}
