package pull

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ostreego/ostree/pkg/errors"
)

// Remote is a remote descriptor: the inputs spec.md §4.5 requires for
// every pull (name, URL, signature verification policy, and the
// collection id used for collection-binding checks).
type Remote struct {
	Name         string
	URL          string
	GPGVerify    bool
	CollectionID string
	KeyPath      string
}

// Source retrieves raw bytes from a remote repository's static file
// tree (objects/, refs/, summary, deltas/). The HTTP client itself is
// an external collaborator; Source is the narrow interface the pull
// engine programs against so tests can substitute an in-memory remote.
type Source interface {
	// Get fetches the named path, relative to the repository root
	// (e.g. "summary", "refs/heads/main", "objects/ab/cdef...file").
	// A missing path must return an error satisfying errors.Is
	// against errors.ErrCodeObjectNotFound's category.
	Get(ctx context.Context, path string) ([]byte, error)
}

// HTTPSource fetches a remote's static file tree over plain HTTP(S),
// the transport ordinary ostree repositories are published over.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	Headers map[string]string
}

// NewHTTPSource returns an HTTPSource with a client bounded by timeout
// and carrying extraHeaders on every request.
func NewHTTPSource(baseURL string, timeout time.Duration, extraHeaders map[string]string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Headers: extraHeaders,
	}
}

func (h *HTTPSource) Get(ctx context.Context, p string) ([]byte, error) {
	u, err := url.Parse(h.BaseURL + "/" + strings.TrimLeft(path.Clean("/"+p), "/"))
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "building remote request URL").WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "building remote request").WithCause(err)
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "remote request failed").WithCause(err).WithDetail("url", u.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "remote object not found").WithDetail("url", u.String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewError(errors.ErrCodeRemoteHTTPError, fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithDetail("url", u.String()).WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "reading remote response body").WithCause(err)
	}
	return body, nil
}

// objectRelPath mirrors internal/objectstore's bucketed layout so a
// Source and a local repository agree on where an object lives.
func objectRelPath(checksumHex string, ext string) string {
	if len(checksumHex) < 3 {
		return path.Join("objects", checksumHex+ext)
	}
	return path.Join("objects", checksumHex[:2], checksumHex[2:]+ext)
}

func deltaRelPath(fromChecksum, toChecksum string) string {
	if fromChecksum == "" {
		return path.Join("deltas", toChecksum, "superblock")
	}
	return path.Join("deltas", fromChecksum+"-"+toChecksum, "superblock")
}
