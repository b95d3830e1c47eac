package archive

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// DefaultKey is the blob key holding the archive document.
const DefaultKey = "fog_trials"

// corruptSuffix is appended to the key when a bad document is set aside.
const corruptSuffix = ".corrupt"

// BlobStore is the persistence collaborator of the archive.
// Implemented by store.Store and testutil.MemStore.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Archive is the ordered log of finalized trials.
//
// Thread-safety: Archive is safe for concurrent use via internal mutex.
// Writes hold the lock across the store write, so readers never see a log
// that differs from the persisted one.
type Archive struct {
	store BlobStore
	key   string
	log   *zap.Logger

	mu     sync.RWMutex
	trials []trial.Trial
}

// Option configures an Archive.
type Option func(*Archive)

// WithKey sets the blob key. Empty keys are ignored.
func WithKey(key string) Option {
	return func(a *Archive) {
		if key != "" {
			a.key = key
		}
	}
}

// WithLogger sets the logger used for soft failures.
func WithLogger(log *zap.Logger) Option {
	return func(a *Archive) {
		if log != nil {
			a.log = log
		}
	}
}

// Open creates an archive over store and loads its persisted trials.
//
// A corrupt document does not fail Open; see Load.
func Open(ctx context.Context, store BlobStore, opts ...Option) (*Archive, error) {
	a := &Archive{
		store: store,
		key:   DefaultKey,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Key returns the blob key holding the archive.
func (a *Archive) Key() string {
	return a.key
}

// Load replaces the in-memory log with the persisted trials.
//
// Returns an error only when the store itself cannot be read. Unparseable
// or invalid content resets the archive to empty after copying the bad
// blob aside.
func (a *Archive) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, found, err := a.store.Get(ctx, a.key)
	if err != nil {
		return fmt.Errorf("load archive: %w", err)
	}
	if !found {
		a.trials = nil
		return nil
	}

	trials, err := unmarshalTrials(data)
	if err != nil {
		a.log.Warn("archive corrupt, starting empty",
			zap.String("key", a.key),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		if putErr := a.store.Put(ctx, a.key+corruptSuffix, data); putErr != nil {
			a.log.Error("failed to back up corrupt archive",
				zap.String("key", a.key+corruptSuffix),
				zap.Error(putErr),
			)
		}
		a.trials = nil
		return nil
	}

	a.trials = trials
	a.log.Debug("archive loaded", zap.String("key", a.key), zap.Int("trials", len(trials)))
	return nil
}

// Len returns the number of archived trials.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.trials)
}

// Trials returns deep copies of all archived trials in insertion order.
func (a *Archive) Trials() []trial.Trial {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]trial.Trial, len(a.trials))
	for i, t := range a.trials {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a copy of the trial with the given id.
func (a *Archive) Get(id string) (trial.Trial, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := a.indexOf(id)
	if i < 0 {
		return trial.Trial{}, trial.NewTrialNotFound(id)
	}
	return a.trials[i].Clone(), nil
}

// Last returns a copy of the most recently appended trial.
func (a *Archive) Last() (trial.Trial, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.trials) == 0 {
		return trial.Trial{}, false
	}
	return a.trials[len(a.trials)-1].Clone(), true
}

// Report returns the recomputed report for the trial with the given id.
func (a *Archive) Report(id string) (fog.Report, error) {
	t, err := a.Get(id)
	if err != nil {
		return fog.Report{}, err
	}
	return fog.Summarize(t), nil
}

// Append adds a finalized trial and persists the whole archive.
func (a *Archive) Append(ctx context.Context, t trial.Trial) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("append trial: %w", err)
	}
	if t.ID == "" {
		return fmt.Errorf("append trial: %w", trial.NewValidationError("id", "must not be empty"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.indexOf(t.ID) >= 0 {
		return fmt.Errorf("append trial: %w", trial.NewValidationError("id", fmt.Sprintf("duplicate trial id %q", t.ID)))
	}

	c := t.Clone()
	if c.FreezeEvents == nil {
		c.FreezeEvents = []trial.FreezeEvent{}
	}
	next := make([]trial.Trial, len(a.trials), len(a.trials)+1)
	copy(next, a.trials)
	next = append(next, c)

	if err := a.commit(ctx, next); err != nil {
		return fmt.Errorf("append trial: %w", err)
	}
	a.log.Info("trial archived",
		zap.String("trial_id", t.ID),
		zap.String("patient_id", t.PatientID),
		zap.Int("freezes", t.FreezeCount()),
	)
	return nil
}

// EditFreeze sets the duration of a freeze in an archived trial,
// persists, and returns the recomputed report.
func (a *Archive) EditFreeze(ctx context.Context, trialID string, freezeID int, durationMs int64) (fog.Report, error) {
	return a.mutate(ctx, trialID, func(t *trial.Trial) error {
		_, err := t.EditFreeze(freezeID, durationMs)
		return err
	})
}

// DeleteFreeze removes a freeze from an archived trial, persists, and
// returns the recomputed report.
func (a *Archive) DeleteFreeze(ctx context.Context, trialID string, freezeID int) (fog.Report, error) {
	return a.mutate(ctx, trialID, func(t *trial.Trial) error {
		return t.DeleteFreeze(freezeID)
	})
}

// DeleteTrial removes a whole trial from the archive.
func (a *Archive) DeleteTrial(ctx context.Context, trialID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexOf(trialID)
	if i < 0 {
		return trial.NewTrialNotFound(trialID)
	}
	next := make([]trial.Trial, 0, len(a.trials)-1)
	next = append(next, a.trials[:i]...)
	next = append(next, a.trials[i+1:]...)
	if err := a.commit(ctx, next); err != nil {
		return fmt.Errorf("delete trial: %w", err)
	}
	a.log.Info("trial deleted", zap.String("trial_id", trialID))
	return nil
}

// Clear removes every trial from the archive.
func (a *Archive) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.commit(ctx, nil); err != nil {
		return fmt.Errorf("clear archive: %w", err)
	}
	a.log.Info("archive cleared")
	return nil
}

// mutate applies fn to a copy of the trial so that a rejected change or a
// failed write leaves the archive untouched.
func (a *Archive) mutate(ctx context.Context, trialID string, fn func(*trial.Trial) error) (fog.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexOf(trialID)
	if i < 0 {
		return fog.Report{}, trial.NewTrialNotFound(trialID)
	}

	updated := a.trials[i].Clone()
	if err := fn(&updated); err != nil {
		return fog.Report{}, err
	}

	next := make([]trial.Trial, len(a.trials))
	copy(next, a.trials)
	next[i] = updated
	if err := a.commit(ctx, next); err != nil {
		return fog.Report{}, fmt.Errorf("update trial %s: %w", trialID, err)
	}
	return fog.Summarize(updated), nil
}

// commit persists next and swaps it in only after the write succeeds.
// Callers hold a.mu for writing.
func (a *Archive) commit(ctx context.Context, next []trial.Trial) error {
	data, err := marshalTrials(next)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, a.key, data); err != nil {
		a.log.Error("archive write failed", zap.String("key", a.key), zap.Error(err))
		return fmt.Errorf("persist archive: %w", err)
	}
	a.trials = next
	return nil
}

func (a *Archive) indexOf(id string) int {
	for i := range a.trials {
		if a.trials[i].ID == id {
			return i
		}
	}
	return -1
}
