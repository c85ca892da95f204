package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/notify"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
	"github.com/omi1811/concretethings-sub000/internal/qsm/testutil"
)

// eventRecorder captures dispatched events instead of delivering them.
type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Dispatch(ctx context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) DispatchAll(ctx context.Context, events []notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *eventRecorder) byType(eventType string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestServices(t *testing.T) (*gorm.DB, *Services, *eventRecorder) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	rec := &eventRecorder{}
	svc := NewServices(db, repository.NewRepositories(db), rec, zap.NewNop())
	return db, svc, rec
}
