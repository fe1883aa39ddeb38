package store

import (
	"context"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// RunStatus tracks a conversion batch.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // some archives failed
	RunStatusFailed   RunStatus = "failed"
)

// Run is one conversion batch.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	TargetCRS string    `json:"target_crs"`
	Archives  int       `json:"archives"`
	Failed    int       `json:"failed"`
	Features  int       `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchiveStatus is the outcome of one input within a run.
type ArchiveStatus struct {
	RunID    string `json:"run_id"`
	Archive  string `json:"archive"`
	Ordinal  int    `json:"ordinal"`
	Features int    `json:"features"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store persists conversion runs and their features.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, id, targetCRS string) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Archives and features
	RecordArchive(ctx context.Context, a ArchiveStatus) error
	ListArchives(ctx context.Context, runID string) ([]ArchiveStatus, error)
	InsertFeatures(ctx context.Context, runID, archive string, srid int, features []*geojson.Feature) error
	ListFeatures(ctx context.Context, runID string) ([]*geojson.Feature, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
