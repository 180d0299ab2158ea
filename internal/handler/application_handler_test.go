package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/middleware"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

type applicationServiceMock struct {
	app        *models.Application
	archived   []string
	err        error
	lastID     string
	lastActor  *models.JWTClaims
	lastUpsert dto.UpsertApplicationRequest
	lastAccept dto.AcceptApplicationRequest
	called     string
}

func (m *applicationServiceMock) record(name, id string, actor *models.JWTClaims) (*models.Application, error) {
	m.called = name
	m.lastID = id
	m.lastActor = actor
	return m.app, m.err
}

func (m *applicationServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("get", id, actor)
}

func (m *applicationServiceMock) Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("create", "", actor)
}

func (m *applicationServiceMock) Upsert(ctx context.Context, id string, req dto.UpsertApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	m.lastUpsert = req
	return m.record("upsert", id, actor)
}

func (m *applicationServiceMock) Accept(ctx context.Context, id string, req dto.AcceptApplicationRequest, actor *models.JWTClaims) (*models.Application, []string, error) {
	m.lastAccept = req
	app, err := m.record("accept", id, actor)
	return app, m.archived, err
}

func (m *applicationServiceMock) Reject(ctx context.Context, id string, req dto.RejectApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("reject", id, actor)
}

func (m *applicationServiceMock) Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("archive", id, actor)
}

func (m *applicationServiceMock) Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("unarchive", id, actor)
}

func (m *applicationServiceMock) Deactivate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("deactivate", id, actor)
}

func (m *applicationServiceMock) Reactivate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return m.record("reactivate", id, actor)
}

func sampleApplication() *models.Application {
	return &models.Application{
		ID:                 "app-1",
		UserID:             "user-1",
		ApplicationDetails: models.ApplicationDetails{CompanyName: "Acme", PositionTitle: "Engineer"},
		States: []models.ApplicationState{
			{ID: "applied", Name: "Applied", SeqNo: 0},
			{ID: "screening", Name: "Screening", SeqNo: 20},
		},
		CurrentStateID: "screening",
		Appointments:   []models.Appointment{},
	}
}

func newApplicationRouter(svc applicationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewApplicationHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})
		c.Next()
	})
	r.GET("/applications/:id", h.Get)
	r.POST("/applications", h.Create)
	r.PUT("/applications/:id", h.Upsert)
	r.POST("/applications/:id/accept", h.Accept)
	r.POST("/applications/:id/reject", h.Reject)
	r.POST("/applications/:id/archive", h.Archive)
	r.POST("/applications/:id/unarchive", h.Unarchive)
	r.POST("/applications/:id/deactivate", h.Deactivate)
	r.POST("/applications/:id/reactivate", h.Reactivate)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestApplicationHandlerGetRendersDerivedCurrentState(t *testing.T) {
	svc := &applicationServiceMock{app: sampleApplication()}
	w := serve(newApplicationRouter(svc), http.MethodGet, "/applications/app-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "app-1", svc.lastID)
	assert.Equal(t, "user-1", svc.lastActor.UserID)

	var body struct {
		States []models.ApplicationStateView `json:"states"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &body))
	require.Len(t, body.States, 2)
	assert.False(t, body.States[0].IsCurrent)
	assert.True(t, body.States[1].IsCurrent)
}

func TestApplicationHandlerCreate(t *testing.T) {
	svc := &applicationServiceMock{app: sampleApplication()}
	w := serve(newApplicationRouter(svc), http.MethodPost, "/applications", `{"companyName":"Acme","positionTitle":"Engineer"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "create", svc.called)
}

func TestApplicationHandlerRejectsMalformedJSON(t *testing.T) {
	svc := &applicationServiceMock{}
	w := serve(newApplicationRouter(svc), http.MethodPut, "/applications/app-1", `{"id":"app-1"`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.called)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestApplicationHandlerUpsertPassesPathAndPayload(t *testing.T) {
	svc := &applicationServiceMock{app: sampleApplication()}
	payload := `{"id":"app-1","companyName":"Acme","positionTitle":"Engineer",
		"states":[{"id":"applied","seqNo":0},{"id":"screening","seqNo":20,"isCurrent":true}]}`
	w := serve(newApplicationRouter(svc), http.MethodPut, "/applications/app-1", payload)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "app-1", svc.lastID)
	require.Len(t, svc.lastUpsert.States, 2)
	assert.True(t, svc.lastUpsert.States[1].IsCurrent)
}

func TestApplicationHandlerValidationErrorCarriesDetails(t *testing.T) {
	var errs appErrors.ValidationErrors
	errs.Add("appointments", models.MsgAppointmentsOverlap)
	svc := &applicationServiceMock{err: errs.Err()}

	w := serve(newApplicationRouter(svc), http.MethodPut, "/applications/app-1", `{"id":"app-1"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, []appErrors.FieldError{{Field: "appointments", Message: models.MsgAppointmentsOverlap}}, env.Error.Details)
}

func TestApplicationHandlerAcceptReportsArchivedSiblings(t *testing.T) {
	svc := &applicationServiceMock{app: sampleApplication(), archived: []string{"app-2", "app-3"}}
	w := serve(newApplicationRouter(svc), http.MethodPost, "/applications/app-1/accept", `{"method":"email","archiveOthers":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.lastAccept.ArchiveOthers)
	assert.Equal(t, models.CommunicationEmail, svc.lastAccept.Method)
	assert.Equal(t, []interface{}{"app-2", "app-3"}, decodeEnvelope(t, w).Meta["archivedApplicationIds"])
}

func TestApplicationHandlerLifecycleRoutes(t *testing.T) {
	for _, action := range []string{"archive", "unarchive", "deactivate", "reactivate"} {
		svc := &applicationServiceMock{app: sampleApplication()}
		w := serve(newApplicationRouter(svc), http.MethodPost, "/applications/app-1/"+action, "")
		require.Equal(t, http.StatusOK, w.Code, action)
		assert.Equal(t, action, svc.called)
	}
}

func TestApplicationHandlerMapsServiceErrors(t *testing.T) {
	cases := map[*appErrors.Error]int{
		appErrors.ErrForbidden: http.StatusForbidden,
		appErrors.ErrIntegrity: http.StatusForbidden,
		appErrors.ErrNotFound:  http.StatusNotFound,
		appErrors.ErrInternal:  http.StatusInternalServerError,
	}
	for err, status := range cases {
		svc := &applicationServiceMock{err: err}
		w := serve(newApplicationRouter(svc), http.MethodPost, "/applications/app-1/reject", `{"method":"email","reason":"x"}`)
		assert.Equal(t, status, w.Code, err.Code)
		assert.Equal(t, err.Code, decodeEnvelope(t, w).Error.Code)
	}
}
