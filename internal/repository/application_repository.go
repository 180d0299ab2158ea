package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/database"
)

const applicationColumns = `id, user_id, company_name, company_website, position_title, position_location,
       position_url, salary_range, notes, states, current_state_id, appointments, rejection, acceptance,
       created_at, created_by, updated_at, updated_by, archived_at, archived_by, deactivated_at, deactivated_by`

// applicationRow is the table shape of an application. Owned collections
// and outcomes live in JSONB columns so the aggregate is written as one row.
type applicationRow struct {
	ID               string             `db:"id"`
	UserID           string             `db:"user_id"`
	CompanyName      string             `db:"company_name"`
	CompanyWebsite   string             `db:"company_website"`
	PositionTitle    string             `db:"position_title"`
	PositionLocation string             `db:"position_location"`
	PositionURL      string             `db:"position_url"`
	SalaryRange      string             `db:"salary_range"`
	Notes            string             `db:"notes"`
	States           types.JSONText     `db:"states"`
	CurrentStateID   string             `db:"current_state_id"`
	Appointments     types.JSONText     `db:"appointments"`
	Rejection        types.NullJSONText `db:"rejection"`
	Acceptance       types.NullJSONText `db:"acceptance"`
	CreatedAt        time.Time          `db:"created_at"`
	CreatedBy        string             `db:"created_by"`
	UpdatedAt        time.Time          `db:"updated_at"`
	UpdatedBy        string             `db:"updated_by"`
	ArchivedAt       *time.Time         `db:"archived_at"`
	ArchivedBy       string             `db:"archived_by"`
	DeactivatedAt    *time.Time         `db:"deactivated_at"`
	DeactivatedBy    string             `db:"deactivated_by"`
}

func newApplicationRow(app *models.Application) (*applicationRow, error) {
	states := app.States
	if states == nil {
		states = []models.ApplicationState{}
	}
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("marshal states: %w", err)
	}
	appointments := app.Appointments
	if appointments == nil {
		appointments = []models.Appointment{}
	}
	appointmentsJSON, err := json.Marshal(appointments)
	if err != nil {
		return nil, fmt.Errorf("marshal appointments: %w", err)
	}
	rejection, err := nullJSON(app.Rejection)
	if err != nil {
		return nil, fmt.Errorf("marshal rejection: %w", err)
	}
	acceptance, err := nullJSON(app.Acceptance)
	if err != nil {
		return nil, fmt.Errorf("marshal acceptance: %w", err)
	}

	return &applicationRow{
		ID:               app.ID,
		UserID:           app.UserID,
		CompanyName:      app.CompanyName,
		CompanyWebsite:   app.CompanyWebsite,
		PositionTitle:    app.PositionTitle,
		PositionLocation: app.PositionLocation,
		PositionURL:      app.PositionURL,
		SalaryRange:      app.SalaryRange,
		Notes:            app.Notes,
		States:           statesJSON,
		CurrentStateID:   app.CurrentStateID,
		Appointments:     appointmentsJSON,
		Rejection:        rejection,
		Acceptance:       acceptance,
		CreatedAt:        app.CreatedAt,
		CreatedBy:        app.CreatedBy,
		UpdatedAt:        app.UpdatedAt,
		UpdatedBy:        app.UpdatedBy,
		ArchivedAt:       app.ArchivedAt,
		ArchivedBy:       app.ArchivedBy,
		DeactivatedAt:    app.DeactivatedAt,
		DeactivatedBy:    app.DeactivatedBy,
	}, nil
}

func (r *applicationRow) model() (*models.Application, error) {
	app := &models.Application{
		ID:     r.ID,
		UserID: r.UserID,
		ApplicationDetails: models.ApplicationDetails{
			CompanyName:      r.CompanyName,
			CompanyWebsite:   r.CompanyWebsite,
			PositionTitle:    r.PositionTitle,
			PositionLocation: r.PositionLocation,
			PositionURL:      r.PositionURL,
			SalaryRange:      r.SalaryRange,
			Notes:            r.Notes,
		},
		CurrentStateID: r.CurrentStateID,
		CreatedAt:      r.CreatedAt,
		CreatedBy:      r.CreatedBy,
		UpdatedAt:      r.UpdatedAt,
		UpdatedBy:      r.UpdatedBy,
		ArchivedAt:     r.ArchivedAt,
		ArchivedBy:     r.ArchivedBy,
		DeactivatedAt:  r.DeactivatedAt,
		DeactivatedBy:  r.DeactivatedBy,
	}
	if err := unmarshalJSON(r.States, &app.States); err != nil {
		return nil, fmt.Errorf("decode states of %s: %w", r.ID, err)
	}
	if err := unmarshalJSON(r.Appointments, &app.Appointments); err != nil {
		return nil, fmt.Errorf("decode appointments of %s: %w", r.ID, err)
	}
	if app.Appointments == nil {
		app.Appointments = []models.Appointment{}
	}
	if r.Rejection.Valid {
		if err := unmarshalJSON(r.Rejection.JSONText, &app.Rejection); err != nil {
			return nil, fmt.Errorf("decode rejection of %s: %w", r.ID, err)
		}
	}
	if r.Acceptance.Valid {
		if err := unmarshalJSON(r.Acceptance.JSONText, &app.Acceptance); err != nil {
			return nil, fmt.Errorf("decode acceptance of %s: %w", r.ID, err)
		}
	}
	return app, nil
}

// ApplicationRepository persists application aggregates.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// GetByID fetches an application. Returns sql.ErrNoRows when missing.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var row applicationRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.model()
}

// GetForUpdate fetches an application and locks its row until tx ends.
// Returns sql.ErrNoRows when missing.
func (r *ApplicationRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	var row applicationRow
	if err := sqlx.GetContext(ctx, database.Ext(r.db, tx), &row, query, id); err != nil {
		return nil, err
	}
	return row.model()
}

// ListOpenByUser returns the owner's applications that are not archived,
// deactivated, rejected or accepted, excluding excludeID. When tx is set
// the rows are read and locked inside it.
func (r *ApplicationRepository) ListOpenByUser(ctx context.Context, tx *sqlx.Tx, userID, excludeID string) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
	WHERE user_id = $1 AND id <> $2
	  AND archived_at IS NULL AND deactivated_at IS NULL
	  AND rejection IS NULL AND acceptance IS NULL
	ORDER BY created_at`
	if tx != nil {
		query += ` FOR UPDATE`
	}
	var rows []applicationRow
	if err := sqlx.SelectContext(ctx, database.Ext(r.db, tx), &rows, query, userID, excludeID); err != nil {
		return nil, fmt.Errorf("list open applications: %w", err)
	}
	return toApplications(rows)
}

// appointmentFlagKeys maps notification channels to their JSON flag keys.
var appointmentFlagKeys = map[string]string{
	models.ChannelEmail:   "emailNotificationSent",
	models.ChannelBrowser: "browserNotificationSent",
}

// ListWithUpcomingAppointments returns active applications holding at least
// one appointment that starts in (from, to] and is still undelivered on one
// of channels. Unknown channels are ignored; with none left nothing matches.
func (r *ApplicationRepository) ListWithUpcomingAppointments(ctx context.Context, from, to time.Time, channels []string) ([]*models.Application, error) {
	pending := make([]string, 0, len(channels))
	for _, ch := range channels {
		if key, ok := appointmentFlagKeys[ch]; ok {
			pending = append(pending, fmt.Sprintf("NOT COALESCE((appt->>'%s')::boolean, false)", key))
		}
	}
	if len(pending) == 0 {
		return []*models.Application{}, nil
	}
	query := `SELECT ` + applicationColumns + ` FROM applications a
	WHERE a.archived_at IS NULL AND a.deactivated_at IS NULL
	  AND EXISTS (
	    SELECT 1 FROM jsonb_array_elements(a.appointments) appt
	    WHERE (appt->>'startDateUtc')::timestamptz > $1
	      AND (appt->>'startDateUtc')::timestamptz <= $2
	      AND (` + strings.Join(pending, " OR ") + `)
	  )
	ORDER BY a.id`
	var rows []applicationRow
	if err := r.db.SelectContext(ctx, &rows, query, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list applications with upcoming appointments: %w", err)
	}
	return toApplications(rows)
}

// Save inserts or fully replaces the aggregate row. A nil tx autocommits.
func (r *ApplicationRepository) Save(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	row, err := newApplicationRow(app)
	if err != nil {
		return fmt.Errorf("save application %s: %w", app.ID, err)
	}
	const query = `INSERT INTO applications (
		id, user_id, company_name, company_website, position_title, position_location, position_url,
		salary_range, notes, states, current_state_id, appointments, rejection, acceptance,
		created_at, created_by, updated_at, updated_by, archived_at, archived_by, deactivated_at, deactivated_by)
	VALUES (
		:id, :user_id, :company_name, :company_website, :position_title, :position_location, :position_url,
		:salary_range, :notes, :states, :current_state_id, :appointments, :rejection, :acceptance,
		:created_at, :created_by, :updated_at, :updated_by, :archived_at, :archived_by, :deactivated_at, :deactivated_by)
	ON CONFLICT (id) DO UPDATE SET
		company_name = EXCLUDED.company_name,
		company_website = EXCLUDED.company_website,
		position_title = EXCLUDED.position_title,
		position_location = EXCLUDED.position_location,
		position_url = EXCLUDED.position_url,
		salary_range = EXCLUDED.salary_range,
		notes = EXCLUDED.notes,
		states = EXCLUDED.states,
		current_state_id = EXCLUDED.current_state_id,
		appointments = EXCLUDED.appointments,
		rejection = EXCLUDED.rejection,
		acceptance = EXCLUDED.acceptance,
		updated_at = EXCLUDED.updated_at,
		updated_by = EXCLUDED.updated_by,
		archived_at = EXCLUDED.archived_at,
		archived_by = EXCLUDED.archived_by,
		deactivated_at = EXCLUDED.deactivated_at,
		deactivated_by = EXCLUDED.deactivated_by`
	if _, err := sqlx.NamedExecContext(ctx, database.Ext(r.db, tx), query, row); err != nil {
		return fmt.Errorf("save application %s: %w", app.ID, err)
	}
	return nil
}

func toApplications(rows []applicationRow) ([]*models.Application, error) {
	apps := make([]*models.Application, 0, len(rows))
	for i := range rows {
		app, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func nullJSON(v interface{}) (types.NullJSONText, error) {
	switch typed := v.(type) {
	case *models.Rejection:
		if typed == nil {
			return types.NullJSONText{}, nil
		}
	case *models.Acceptance:
		if typed == nil {
			return types.NullJSONText{}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: raw, Valid: true}, nil
}

func unmarshalJSON(raw types.JSONText, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
