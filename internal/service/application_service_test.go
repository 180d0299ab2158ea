package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

type applicationFixture struct {
	store  *appStoreStub
	events *eventStoreStub
	runner *runnerStub
	svc    *ApplicationService
}

func newApplicationFixture(apps ...*models.Application) *applicationFixture {
	store := newAppStoreStub(apps...)
	events := &eventStoreStub{}
	runner := &runnerStub{}
	coordinator := NewMutationCoordinator(runner, events, nil, nil)
	catalog := &catalogStub{defs: []models.ApplicationStateDefinition{
		{ID: "applied", Name: "Applied", SeqNo: 0, IsActive: true},
		{ID: "screening", Name: "Screening", SeqNo: 20, IsActive: true},
	}}
	svc := NewApplicationService(store, catalog, coordinator, testLimits(), nil,
		WithApplicationClock(clock.NewFixed(testNow)))
	return &applicationFixture{store: store, events: events, runner: runner, svc: svc}
}

func (f *applicationFixture) assertNoPersistence(t *testing.T) {
	t.Helper()
	assert.Zero(t, f.runner.runs)
	assert.Empty(t, f.store.saved)
	assert.Zero(t, f.events.calls)
}

func owner(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleUser}
}

func upsertRequestFor(app *models.Application) dto.UpsertApplicationRequest {
	req := dto.UpsertApplicationRequest{
		ID: app.ID,
		ApplicationDetailsInput: dto.ApplicationDetailsInput{
			CompanyName:   app.CompanyName,
			PositionTitle: app.PositionTitle,
		},
	}
	for _, s := range app.StateViews() {
		req.States = append(req.States, dto.StateInput{ID: s.ID, Name: s.Name, SeqNo: s.SeqNo, IsCurrent: s.IsCurrent})
	}
	for _, appt := range app.Appointments {
		req.Appointments = append(req.Appointments, dto.AppointmentInput{
			ID:                      appt.ID,
			Description:             appt.Description,
			StartDateUTC:            appt.StartDateUTC,
			EndDateUTC:              appt.EndDateUTC,
			EmailNotificationSent:   appt.EmailNotificationSent,
			BrowserNotificationSent: appt.BrowserNotificationSent,
			ApplicationStateID:      appt.ApplicationStateID,
		})
	}
	return req
}

func setCurrent(req *dto.UpsertApplicationRequest, stateID string) {
	for i := range req.States {
		req.States[i].IsCurrent = req.States[i].ID == stateID
	}
}

func TestApplicationServiceUpsertStateChangeEmitsStateChangedThenUpdated(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	f := newApplicationFixture(app)

	req := upsertRequestFor(app)
	setCurrent(&req, "screening")

	updated, err := f.svc.Upsert(context.Background(), "app-1", req, owner("user-1"))
	require.NoError(t, err)

	assert.Equal(t, []models.EventType{models.EventApplicationStateChanged, models.EventApplicationUpdated}, f.events.types())

	reloaded, err := f.svc.Get(context.Background(), "app-1", owner("user-1"))
	require.NoError(t, err)
	views := reloaded.StateViews()
	require.Len(t, views, 2)
	assert.False(t, views[0].IsCurrent, "Applied must no longer be current")
	assert.True(t, views[1].IsCurrent, "Screening must be current")
	assert.Equal(t, "screening", updated.CurrentStateID)

	payload, err := f.events.events[0].DecodeApplicationPayload()
	require.NoError(t, err)
	assert.Equal(t, "applied", payload.FromStateID)
	assert.Equal(t, "screening", payload.ToStateID)
}

func TestApplicationServiceUpsertWithoutStateChangeEmitsOnlyUpdated(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	f := newApplicationFixture(app)

	req := upsertRequestFor(app)
	req.Notes = "Referred by a friend"

	updated, err := f.svc.Upsert(context.Background(), "app-1", req, owner("user-1"))
	require.NoError(t, err)
	assert.Equal(t, []models.EventType{models.EventApplicationUpdated}, f.events.types())
	assert.Equal(t, "Referred by a friend", updated.Notes)
	assert.Equal(t, testNow, updated.UpdatedAt)
}

func TestApplicationServiceUpsertRejectsOverlapWithoutPersisting(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	f := newApplicationFixture(app)

	start := testNow.Add(48 * time.Hour)
	req := upsertRequestFor(app)
	req.Appointments = []dto.AppointmentInput{
		{ID: "a", Description: "Onsite", StartDateUTC: start, EndDateUTC: start.Add(4 * time.Hour), ApplicationStateID: "screening"},
		{ID: "b", Description: "Panel", StartDateUTC: start.Add(2 * time.Hour), EndDateUTC: start.Add(6 * time.Hour), ApplicationStateID: "screening"},
	}

	_, err := f.svc.Upsert(context.Background(), "app-1", req, owner("user-1"))
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	appErr := appErrors.FromError(err)
	assert.Contains(t, appErr.Details, appErrors.FieldError{Field: "appointments", Message: "Appointments cannot overlap."})
	f.assertNoPersistence(t)
}

func TestApplicationServiceUpsertShiftedAppointmentIsRenotified(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	app.Appointments = []models.Appointment{{
		ID:                      "appt-1",
		Description:             "Phone screen",
		StartDateUTC:            testNow.Add(15 * time.Minute),
		EndDateUTC:              testNow.Add(4 * time.Hour),
		EmailNotificationSent:   true,
		BrowserNotificationSent: true,
		ApplicationStateID:      "applied",
	}}
	f := newApplicationFixture(app)

	req := upsertRequestFor(app)
	req.Appointments[0].StartDateUTC = testNow.Add(45 * time.Minute)

	updated, err := f.svc.Upsert(context.Background(), "app-1", req, owner("user-1"))
	require.NoError(t, err)
	require.Len(t, updated.Appointments, 1)
	assert.False(t, updated.Appointments[0].EmailNotificationSent)
	assert.False(t, updated.Appointments[0].BrowserNotificationSent)
}

func TestApplicationServiceUpsertIntegrityFailures(t *testing.T) {
	app := newTestApplication("app-1", "user-1")

	cases := map[string]func(req *dto.UpsertApplicationRequest) string{
		"payload id differs from path": func(req *dto.UpsertApplicationRequest) string {
			req.ID = "app-2"
			return "app-1"
		},
		"unknown state id": func(req *dto.UpsertApplicationRequest) string {
			req.States[1].ID = "offer"
			return "app-1"
		},
		"appointment references foreign state": func(req *dto.UpsertApplicationRequest) string {
			start := testNow.Add(24 * time.Hour)
			req.Appointments = []dto.AppointmentInput{{ID: "a", Description: "x", StartDateUTC: start, EndDateUTC: start.Add(time.Hour), ApplicationStateID: "elsewhere"}}
			return "app-1"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newApplicationFixture(app)
			req := upsertRequestFor(app)
			path := mutate(&req)

			_, err := f.svc.Upsert(context.Background(), path, req, owner("user-1"))
			require.True(t, appErrors.Is(err, appErrors.ErrIntegrity), "got %v", err)
			f.assertNoPersistence(t)
		})
	}
}

func TestApplicationServiceUpsertMissingAppointmentStateIsValidationError(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	f := newApplicationFixture(app)

	req := upsertRequestFor(app)
	start := testNow.Add(24 * time.Hour)
	req.Appointments = []dto.AppointmentInput{{ID: "a", Description: "Call", StartDateUTC: start, EndDateUTC: start.Add(time.Hour)}}

	_, err := f.svc.Upsert(context.Background(), "app-1", req, owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation), "got %v", err)
	assert.Contains(t, appErrors.FromError(err).Details,
		appErrors.FieldError{Field: "appointments[0].applicationStateId", Message: msgApptStateRequired})
	f.assertNoPersistence(t)
}

func TestApplicationServiceUpsertRejectsDirectOutcomeChanges(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	f := newApplicationFixture(app)

	req := upsertRequestFor(app)
	req.Rejection = &dto.RejectionInput{Method: models.CommunicationEmail, Reason: "sneaky"}
	req.Acceptance = &dto.AcceptanceInput{Method: models.CommunicationEmail}

	_, err := f.svc.Upsert(context.Background(), "app-1", req, owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	details := appErrors.FromError(err).Details
	assert.Contains(t, details, appErrors.FieldError{Field: "rejection", Message: msgRejectionLocked})
	assert.Contains(t, details, appErrors.FieldError{Field: "acceptance", Message: msgAcceptanceLocked})
	f.assertNoPersistence(t)
}

func TestApplicationServiceUpsertDeactivatedIsRejected(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	app.Deactivate("user-1", testNow.Add(-time.Hour))
	f := newApplicationFixture(app)

	_, err := f.svc.Upsert(context.Background(), "app-1", upsertRequestFor(app), owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, appErrors.FromError(err).Details, appErrors.FieldError{Message: msgDeactivated})
	f.assertNoPersistence(t)
}

func TestApplicationServiceForeignOwnerIsForbidden(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	f := newApplicationFixture(app)

	_, err := f.svc.Archive(context.Background(), "app-1", owner("user-2"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	f.assertNoPersistence(t)

	_, err = f.svc.Get(context.Background(), "app-1", owner("user-2"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestApplicationServiceMissingApplication(t *testing.T) {
	f := newApplicationFixture()

	_, err := f.svc.Reject(context.Background(), "nope", dto.RejectApplicationRequest{Method: models.CommunicationEmail, Reason: "x"}, owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Get(context.Background(), "nope", nil)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestApplicationServiceRejectClearsAppointmentsAndIsWriteOnce(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	start := testNow.Add(24 * time.Hour)
	app.Appointments = []models.Appointment{{ID: "a", Description: "Call", StartDateUTC: start, EndDateUTC: start.Add(time.Hour), ApplicationStateID: "applied"}}
	f := newApplicationFixture(app)

	req := dto.RejectApplicationRequest{Method: models.CommunicationEmail, Reason: "Position filled"}
	rejected, err := f.svc.Reject(context.Background(), "app-1", req, owner("user-1"))
	require.NoError(t, err)
	assert.Empty(t, rejected.Appointments)
	require.NotNil(t, rejected.Rejection)
	assert.Equal(t, testNow, rejected.Rejection.RejectedAt)
	assert.Equal(t, []models.EventType{models.EventApplicationRejected}, f.events.types())

	_, err = f.svc.Reject(context.Background(), "app-1", req, owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, appErrors.FromError(err).Details, appErrors.FieldError{Message: msgAlreadyRejected})
	assert.Len(t, f.events.events, 1)
}

func TestApplicationServiceRejectCollectsAllViolations(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	app.Archive("user-1", testNow.Add(-time.Hour))
	f := newApplicationFixture(app)

	_, err := f.svc.Reject(context.Background(), "app-1", dto.RejectApplicationRequest{Method: models.CommunicationNone}, owner("user-1"))
	require.Error(t, err)
	details := appErrors.FromError(err).Details
	assert.Equal(t, []appErrors.FieldError{
		{Message: msgArchived},
		{Field: "method", Message: msgMethodRequired},
		{Field: "reason", Message: msgReasonRequired},
	}, details)
	f.assertNoPersistence(t)
}

func TestApplicationServiceAcceptArchivesOnlyOpenSiblings(t *testing.T) {
	primary := newTestApplication("app-a", "user-1")
	open := newTestApplication("app-b", "user-1")
	start := testNow.Add(24 * time.Hour)
	open.Appointments = []models.Appointment{{ID: "x", Description: "Call", StartDateUTC: start, EndDateUTC: start.Add(time.Hour), ApplicationStateID: "applied"}}
	rejected := newTestApplication("app-c", "user-1")
	rejected.Reject(models.CommunicationEmail, "no", "", "user-1", testNow.Add(-time.Hour))
	archived := newTestApplication("app-d", "user-1")
	archived.Archive("user-1", testNow.Add(-time.Hour))
	deactivated := newTestApplication("app-e", "user-1")
	deactivated.Deactivate("user-1", testNow.Add(-time.Hour))
	accepted := newTestApplication("app-f", "user-1")
	accepted.Accept(models.CommunicationPhone, "", "user-1", testNow.Add(-time.Hour))
	foreign := newTestApplication("app-g", "user-2")

	f := newApplicationFixture(primary, open, rejected, archived, deactivated, accepted, foreign)

	result, archivedIDs, err := f.svc.Accept(context.Background(), "app-a",
		dto.AcceptApplicationRequest{Method: models.CommunicationEmail, Response: "Happy to join", ArchiveOthers: true}, owner("user-1"))
	require.NoError(t, err)

	assert.True(t, result.IsAccepted())
	assert.Equal(t, []string{"app-b"}, archivedIDs)
	assert.Equal(t, []string{"app-a", "app-b"}, f.store.savedIDs())
	assert.Equal(t, []models.EventType{models.EventApplicationAccepted, models.EventApplicationArchived}, f.events.types())
	assert.Equal(t, 1, f.runner.runs)

	sibling, err := f.store.GetByID(context.Background(), "app-b")
	require.NoError(t, err)
	assert.True(t, sibling.IsArchived())
	assert.Empty(t, sibling.Appointments)

	untouched, err := f.store.GetByID(context.Background(), "app-g")
	require.NoError(t, err)
	assert.True(t, untouched.IsOpen())
}

func TestApplicationServiceAcceptWithoutCascade(t *testing.T) {
	f := newApplicationFixture(newTestApplication("app-a", "user-1"), newTestApplication("app-b", "user-1"))

	_, archivedIDs, err := f.svc.Accept(context.Background(), "app-a",
		dto.AcceptApplicationRequest{Method: models.CommunicationEmail}, owner("user-1"))
	require.NoError(t, err)
	assert.Empty(t, archivedIDs)
	assert.Zero(t, f.store.listCalls)
	assert.Equal(t, []string{"app-a"}, f.store.savedIDs())
}

func TestApplicationServiceArchiveLifecycle(t *testing.T) {
	f := newApplicationFixture(newTestApplication("app-1", "user-1"))
	ctx := context.Background()

	_, err := f.svc.Unarchive(ctx, "app-1", owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	archived, err := f.svc.Archive(ctx, "app-1", owner("user-1"))
	require.NoError(t, err)
	assert.True(t, archived.IsArchived())

	_, err = f.svc.Archive(ctx, "app-1", owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	restored, err := f.svc.Unarchive(ctx, "app-1", owner("user-1"))
	require.NoError(t, err)
	assert.False(t, restored.IsArchived())
	assert.Equal(t, []models.EventType{models.EventApplicationArchived, models.EventApplicationUnarchived}, f.events.types())
}

func TestApplicationServiceActivationLifecycle(t *testing.T) {
	f := newApplicationFixture(newTestApplication("app-1", "user-1"))
	ctx := context.Background()

	_, err := f.svc.Reactivate(ctx, "app-1", owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Deactivate(ctx, "app-1", owner("user-1"))
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, "app-1", owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, _, err = f.svc.Accept(ctx, "app-1", dto.AcceptApplicationRequest{Method: models.CommunicationEmail}, owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	reactivated, err := f.svc.Reactivate(ctx, "app-1", owner("user-1"))
	require.NoError(t, err)
	assert.False(t, reactivated.IsDeactivated())
	assert.Equal(t, []models.EventType{models.EventApplicationDeactivated, models.EventApplicationReactivated}, f.events.types())
}

func TestApplicationServiceCreateSeedsCatalog(t *testing.T) {
	f := newApplicationFixture()

	app, err := f.svc.Create(context.Background(), dto.CreateApplicationRequest{
		ApplicationDetailsInput: dto.ApplicationDetailsInput{CompanyName: " Acme ", PositionTitle: "Engineer"},
	}, owner("user-1"))
	require.NoError(t, err)

	assert.NotEmpty(t, app.ID)
	assert.Equal(t, "Acme", app.CompanyName)
	assert.Equal(t, "applied", app.CurrentStateID)
	assert.Equal(t, []models.EventType{models.EventApplicationInserted}, f.events.types())
	assert.Equal(t, []string{app.ID}, f.store.savedIDs())
}

func TestApplicationServiceCreateValidation(t *testing.T) {
	f := newApplicationFixture()

	_, err := f.svc.Create(context.Background(), dto.CreateApplicationRequest{}, owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Len(t, appErrors.FromError(err).Details, 2)
	f.assertNoPersistence(t)
}

func TestApplicationServicePersistenceFailureIsInternal(t *testing.T) {
	f := newApplicationFixture(newTestApplication("app-1", "user-1"))
	f.store.saveErr = errors.New("connection reset")

	_, err := f.svc.Archive(context.Background(), "app-1", owner("user-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.ErrorContains(t, err, "connection reset")
	assert.Zero(t, f.events.calls)
}

func TestWorkflowApplyWithInvalidRequestLeavesAggregateUnchanged(t *testing.T) {
	app := newTestApplication("app-1", "user-1")
	start := testNow.Add(24 * time.Hour)
	app.Appointments = []models.Appointment{{ID: "a", Description: "Call", StartDateUTC: start, EndDateUTC: start.Add(time.Hour), ApplicationStateID: "applied"}}
	before, err := json.Marshal(app)
	require.NoError(t, err)

	sink := NewEventSink()
	reject := NewRejectWorkflow(clock.NewFixed(testNow), testLimits())
	require.Error(t, reject.Apply(app, dto.RejectApplicationRequest{Method: models.CommunicationEmail}, "user-1", sink))

	upsert := NewUpsertWorkflow(clock.NewFixed(testNow), testLimits(), nil)
	req := upsertRequestFor(app)
	setCurrent(&req, "screening")
	req.Appointments = append(req.Appointments, dto.AppointmentInput{
		ID: "b", Description: "Overlapping", StartDateUTC: start.Add(30 * time.Minute), EndDateUTC: start.Add(2 * time.Hour), ApplicationStateID: "applied",
	})
	require.Error(t, upsert.Apply(app, req, "user-1", sink))

	after, err := json.Marshal(app)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Zero(t, sink.Len())
}
