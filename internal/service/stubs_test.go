package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testLimits() config.ApplicationsConfig {
	return config.ApplicationsConfig{
		MinAppointmentDuration:    5 * time.Minute,
		MaxAppointmentDuration:    8 * time.Hour,
		MaxAppointmentDescription: 200,
		MaxRejectionReasonLength:  500,
		MaxResponseTextLength:     2000,
		MaxDescriptiveFieldLength: 250,
		MaxNotesLength:            5000,
	}
}

// newTestApplication returns an open application in state Applied with
// states Applied(0) and Screening(20).
func newTestApplication(id, userID string) *models.Application {
	return &models.Application{
		ID:     id,
		UserID: userID,
		ApplicationDetails: models.ApplicationDetails{
			CompanyName:   "Acme",
			PositionTitle: "Engineer",
		},
		States: []models.ApplicationState{
			{ID: "applied", Name: "Applied", SeqNo: 0},
			{ID: "screening", Name: "Screening", SeqNo: 20},
		},
		CurrentStateID: "applied",
		Appointments:   []models.Appointment{},
		CreatedAt:      testNow.Add(-48 * time.Hour),
		CreatedBy:      userID,
		UpdatedAt:      testNow.Add(-48 * time.Hour),
		UpdatedBy:      userID,
	}
}

type appStoreStub struct {
	mu        sync.Mutex
	apps      map[string]*models.Application
	saved     []*models.Application
	saveTxs   []*sqlx.Tx
	saveErr   error
	getErr    error
	listCalls int
}

func newAppStoreStub(apps ...*models.Application) *appStoreStub {
	s := &appStoreStub{apps: make(map[string]*models.Application)}
	for _, app := range apps {
		s.apps[app.ID] = app.Clone()
	}
	return s
}

func (s *appStoreStub) GetByID(ctx context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return app.Clone(), nil
}

// ListOpenByUser returns every application of the user except excludeID,
// leaving the open filter to the caller.
func (s *appStoreStub) ListOpenByUser(ctx context.Context, tx *sqlx.Tx, userID, excludeID string) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]*models.Application, 0)
	for _, app := range s.apps {
		if app.UserID == userID && app.ID != excludeID {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *appStoreStub) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	return s.GetByID(ctx, id)
}

func (s *appStoreStub) ListWithUpcomingAppointments(ctx context.Context, from, to time.Time, channels []string) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Application, 0)
	for _, app := range s.apps {
		if app.IsArchived() || app.IsDeactivated() {
			continue
		}
		for _, appt := range app.Appointments {
			if appt.StartDateUTC.After(from) && !appt.StartDateUTC.After(to) && appt.PendingOn(channels) {
				out = append(out, app.Clone())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *appStoreStub) Save(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, app.Clone())
	s.saveTxs = append(s.saveTxs, tx)
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *appStoreStub) savedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.saved))
	for i, app := range s.saved {
		ids[i] = app.ID
	}
	return ids
}

type catalogStub struct {
	defs []models.ApplicationStateDefinition
	err  error
}

func (c *catalogStub) ListActive(ctx context.Context) ([]models.ApplicationStateDefinition, error) {
	return c.defs, c.err
}

type eventStoreStub struct {
	mu        sync.Mutex
	events    []models.DomainEvent
	appendErr error
	calls     int
}

func (e *eventStoreStub) Append(ctx context.Context, tx *sqlx.Tx, events []models.DomainEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.appendErr != nil {
		return e.appendErr
	}
	e.events = append(e.events, events...)
	return nil
}

func (e *eventStoreStub) ListByTypeBetween(ctx context.Context, eventType models.EventType, from, to time.Time) ([]models.DomainEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.DomainEvent, 0)
	for _, evt := range e.events {
		if evt.Type == eventType && evt.OccurredAt.After(from) && !evt.OccurredAt.After(to) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (e *eventStoreStub) types() []models.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.EventType, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Type
	}
	return out
}

// runnerStub runs work without a database. Writes made by stubs stay
// visible even when fn fails, so tests assert on call counts instead.
type runnerStub struct {
	runs int
	err  error
}

func (r *runnerStub) Run(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	r.runs++
	if r.err != nil {
		return r.err
	}
	return fn(nil)
}
