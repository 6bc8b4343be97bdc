package file

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

// RunRepository handles run-related file operations. The mutex makes the
// read-compare-write in Update atomic within the process, and Create refuses a second
// non-terminal run for one dedup key like the PostgreSQL in-flight index does.
type RunRepository struct {
	dir string
	mu  sync.Mutex
}

func (r *RunRepository) Create(_ context.Context, run *models.WorkflowRun) error {
	if !validID(run.ID) {
		return persistence.NewRunError("Create", run.ID, fmt.Errorf("invalid identifier %q", run.ID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var existing models.WorkflowRun
	if err := readJSON(r.dir, run.ID, &existing); err == nil {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	} else if !isNotExist(err) {
		return persistence.NewRunError("Create", run.ID, err)
	}

	if !run.Status.IsTerminal() {
		key := run.DedupKey()

		inFlight, err := r.scan(func(other *models.WorkflowRun) bool {
			return !other.Status.IsTerminal() && other.DedupKey() == key
		})
		if err != nil {
			return err
		}

		if len(inFlight) > 0 {
			return persistence.NewRunError("Create", run.ID,
				fmt.Errorf("%w: run %s is in flight for %s", persistence.ErrRunAlreadyExists, inFlight[0].ID, key))
		}
	}

	if err := writeJSON(r.dir, run.ID, run); err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	if !validID(id) {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load("GetByID", id)
}

func (r *RunRepository) load(op, id string) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	if err := readJSON(r.dir, id, &run); err != nil {
		if isNotExist(err) {
			return nil, persistence.NewRunError(op, id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError(op, id, err)
	}

	return &run, nil
}

func (r *RunRepository) List(_ context.Context, filter persistence.RunFilter) ([]*models.WorkflowRun, error) {
	runs, err := r.all(filter.Matches)
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit := filter.EffectiveLimit(); len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

func (r *RunRepository) Update(_ context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load("Update", run.ID)
	if err != nil {
		return err
	}

	if stored.Version != run.Version {
		return persistence.NewVersionConflictError("Update", run.ID, run.Version)
	}

	next := run.Clone()
	next.Version++

	if err := writeJSON(r.dir, run.ID, next); err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	run.Version = next.Version

	return nil
}

func (r *RunRepository) DueRuns(_ context.Context, now time.Time, leaseCutoff time.Time, limit int) ([]*models.WorkflowRun, error) {
	runs, err := r.all(func(run *models.WorkflowRun) bool {
		if run.IsDue(now) {
			return true
		}

		switch run.Status {
		case models.RunStatusRunning:
			return run.ClaimedAt != nil && run.ClaimedAt.Before(leaseCutoff)
		case models.RunStatusPending:
			return run.CreatedAt.Before(leaseCutoff)
		default:
			return false
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return wakeTime(runs[i]).Before(wakeTime(runs[j]))
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

func (r *RunRepository) all(keep func(*models.WorkflowRun) bool) ([]*models.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.scan(keep)
}

// scan loads every stored run accepted by keep. Callers hold r.mu.
func (r *RunRepository) scan(keep func(*models.WorkflowRun) bool) ([]*models.WorkflowRun, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.WorkflowRun, 0, len(ids))

	for _, id := range ids {
		run, err := r.load("List", id)
		if err != nil {
			if persistence.IsRunNotFound(err) {
				continue
			}

			return nil, err
		}

		if keep(run) {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

func wakeTime(run *models.WorkflowRun) time.Time {
	if run.NextWakeAt != nil {
		return *run.NextWakeAt
	}

	if run.ClaimedAt != nil {
		return *run.ClaimedAt
	}

	return run.CreatedAt
}
