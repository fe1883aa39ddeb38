package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forest-geo/internal/convert"
	"github.com/sells-group/forest-geo/internal/projection"
	"github.com/sells-group/forest-geo/internal/store"
)

// openStore opens and migrates the SQLite run store at path.
func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if path == "" {
		return nil, eris.New("store path is required (FOREST_STORE_PATH or --store)")
	}
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// recordRun persists a finished batch: one run row, one row per input and
// the features of every successful input.
func recordRun(ctx context.Context, st store.Store, runID, targetCRS string, results []convert.ArchiveResult) (store.RunStatus, error) {
	if _, err := st.CreateRun(ctx, runID, targetCRS); err != nil {
		return "", err
	}

	srid, err := projection.ParseEPSG(targetCRS)
	if err != nil {
		srid = 0
	}

	failed := 0
	for i, r := range results {
		a := store.ArchiveStatus{
			RunID:    runID,
			Archive:  r.Archive,
			Ordinal:  i,
			Features: len(r.Features),
			Skipped:  len(r.Skipped),
		}
		if r.Err != nil {
			a.Error = r.Err.Error()
			failed++
		}
		if err := st.RecordArchive(ctx, a); err != nil {
			return "", err
		}
		if r.Err != nil || len(r.Features) == 0 {
			continue
		}
		if err := st.InsertFeatures(ctx, runID, r.Archive, srid, r.Features); err != nil {
			return "", eris.Wrapf(err, "store features of %s", r.Archive)
		}
	}

	status := runStatus(len(results), failed)
	if err := st.CompleteRun(ctx, runID, status); err != nil {
		return "", err
	}
	return status, nil
}

func runStatus(total, failed int) store.RunStatus {
	switch {
	case failed == 0:
		return store.RunStatusComplete
	case failed == total:
		return store.RunStatusFailed
	default:
		return store.RunStatusPartial
	}
}
