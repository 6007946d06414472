package pull

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
)

// Summary is the document a remote publishes at its repository root
// naming every ref it currently advertises, the commit each resolves
// to, and which static deltas are available for it. Unlike the
// canonical object encodings (fixed by spec.md §6), the summary's wire
// format isn't mandated, so this uses a small JSON document: it's a
// one-shot metadata fetch, not a hot data path, and JSON is what the
// rest of this module already reaches for at similar boundaries
// (pkg/status, pkg/api).
type Summary struct {
	Refs        map[string]SummaryRefEntry `json:"refs"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// SummaryRefEntry is one ref's entry in a Summary.
type SummaryRefEntry struct {
	Checksum     string   `json:"checksum"`
	Timestamp    time.Time `json:"timestamp"`
	Size         int64    `json:"size"`
	DeltasToHere []string `json:"deltas_to_here"` // "from" checksums, "" for a from-empty delta
}

// FetchSummary retrieves and parses the remote's summary document.
func FetchSummary(ctx context.Context, src Source) (*Summary, error) {
	body, err := src.Get(ctx, "summary")
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "decoding remote summary").WithCause(err)
	}
	return &s, nil
}

// ResolveRef locates the commit checksum a ref names, per spec.md
// §4.5 step 1: consult override-commit-ids first, else the summary,
// validating the result is a well-formed checksum either way.
func ResolveRef(ctx context.Context, src Source, refName string, opts Options) (string, error) {
	if override, ok := opts.OverrideCommitIDs[refName]; ok {
		if _, err := objectstore.ParseChecksum(override); err != nil {
			return "", err
		}
		return override, nil
	}

	summary, err := FetchSummary(ctx, src)
	if err != nil {
		return "", err
	}
	entry, ok := summary.Refs[refName]
	if !ok {
		return "", errors.NewError(errors.ErrCodeRefNotFound, "ref not advertised by remote summary").WithDetail("ref", refName)
	}
	if _, err := objectstore.ParseChecksum(entry.Checksum); err != nil {
		return "", err
	}
	return entry.Checksum, nil
}
