package catalog

import (
	"context"
	"time"
)

// Fetcher issues a GET for a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Harvester collects detail references from the paginated search listing.
type Harvester interface {
	Harvest(ctx context.Context, term string, fromPage, toPage int) ([]DetailRef, error)
}

// Detail is the outcome of a successful extraction: the normalized record plus
// the raw detail page, reused as the html snapshot.
type Detail struct {
	Record   BookRecord
	Snapshot []byte
}

// Extractor turns a detail reference into a record.
type Extractor interface {
	Extract(ctx context.Context, ref DetailRef) (Detail, error)
}

// Resolver turns a mirror page reference into the final downloadable URL.
type Resolver interface {
	ResolveFileURL(ctx context.Context, fileRef string) (string, error)
}

// Source is what a Downloader writes: either a URL to fetch or a body that
// was already retrieved.
type Source struct {
	URL  string
	Body []byte
}

// Downloader writes a resource to a collision-free path and returns it.
type Downloader interface {
	Download(ctx context.Context, src Source, category Category, title string) (string, error)
}

// Store persists a finished batch.
type Store interface {
	Persist(ctx context.Context, batch []BookRecord, term string) (PersistSummary, error)
}

// WorkItem is one harvested reference and its position in the harvest.
type WorkItem struct {
	Index int
	Ref   DetailRef
}

// Queue hands work items to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
	Close()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
