package responses

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

func setupResponsesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	callouts := `
CREATE TABLE IF NOT EXISTS callouts (
  id TEXT PRIMARY KEY,
  client_name TEXT NOT NULL,
  client_phone TEXT NOT NULL,
  client_address TEXT NOT NULL,
  client_postcode TEXT NOT NULL,
  incident_type TEXT NOT NULL,
  priority TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL DEFAULT 'open',
  broadcast_at DATETIME NOT NULL,
  linked_job_id TEXT,
  resolved_at DATETIME,
  cancelled_at DATETIME,
  total_collected TEXT,
  fee_percent INTEGER,
  fee_amount TEXT,
  partner_earnings TEXT,
  completion_notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	calloutResponses := `
CREATE TABLE IF NOT EXISTS callout_responses (
  id TEXT PRIMARY KEY,
  callout_id TEXT NOT NULL,
  partner_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  proposed_arrival_minutes INTEGER,
  response_notes TEXT,
  decline_reason TEXT,
  acknowledged_at DATETIME,
  responded_at DATETIME,
  declined_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(callouts).Error)
	require.NoError(t, db.Exec(calloutResponses).Error)
	return db
}

func newCallout(t *testing.T, db *gorm.DB, status enums.CalloutStatus) *models.Callout {
	t.Helper()

	callout := &models.Callout{
		ID:             uuid.New(),
		ClientName:     "Ada Price",
		ClientPhone:    "+447700900123",
		ClientAddress:  "14 Harbour Lane",
		ClientPostcode: "BS1 4DJ",
		IncidentType:   enums.IncidentTypeLeak,
		Priority:       enums.CalloutPriorityCritical,
		Status:         status,
		BroadcastAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(callout).Error)
	return callout
}

func newResponse(t *testing.T, db *gorm.DB, calloutID uuid.UUID, status enums.ResponseStatus, created time.Time) *models.CalloutResponse {
	t.Helper()

	response := &models.CalloutResponse{
		ID:        uuid.New(),
		CalloutID: calloutID,
		PartnerID: uuid.New(),
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, db.Create(response).Error)
	return response
}

func TestUpdateStatusIfCurrentWinsOnlyFromAllowedStatus(t *testing.T) {
	db := setupResponsesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	callout := newCallout(t, db, enums.CalloutStatusOpen)
	response := newResponse(t, db, callout.ID, enums.ResponseStatusPending, time.Now().UTC())

	now := time.Now().UTC()
	affected, err := repo.UpdateStatusIfCurrent(ctx, response.ID,
		[]enums.ResponseStatus{enums.ResponseStatusPending},
		enums.ResponseStatusAcknowledged,
		map[string]any{"acknowledged_at": now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	updated, err := repo.FindByID(ctx, response.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ResponseStatusAcknowledged, updated.Status)
	require.NotNil(t, updated.AcknowledgedAt)

	// The row no longer holds an allowed status, so the second CAS loses.
	affected, err = repo.UpdateStatusIfCurrent(ctx, response.ID,
		[]enums.ResponseStatus{enums.ResponseStatusPending},
		enums.ResponseStatusDeclined, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	unchanged, err := repo.FindByID(ctx, response.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ResponseStatusAcknowledged, unchanged.Status)
}

func TestUpdateStatusIfCurrentLosesWhenCalloutClosed(t *testing.T) {
	db := setupResponsesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	callout := newCallout(t, db, enums.CalloutStatusOpen)
	response := newResponse(t, db, callout.ID, enums.ResponseStatusPending, time.Now().UTC())

	// A cancel that commits after the service's open check but before the
	// write must still make the CAS lose.
	require.NoError(t, db.Model(&models.Callout{}).
		Where("id = ?", callout.ID).
		Update("status", enums.CalloutStatusCancelled).Error)

	affected, err := repo.UpdateStatusIfCurrent(ctx, response.ID,
		[]enums.ResponseStatus{enums.ResponseStatusPending},
		enums.ResponseStatusAcknowledged,
		map[string]any{"acknowledged_at": time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	unchanged, err := repo.FindByID(ctx, response.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ResponseStatusPending, unchanged.Status)
}

func TestExpirePendingSkipsNonPendingRows(t *testing.T) {
	db := setupResponsesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	callout := newCallout(t, db, enums.CalloutStatusOpen)
	pending := newResponse(t, db, callout.ID, enums.ResponseStatusPending, time.Now().UTC())
	responded := newResponse(t, db, callout.ID, enums.ResponseStatusResponded, time.Now().UTC())

	now := time.Now().UTC()
	affected, err := repo.ExpirePending(ctx, nil, pending.ID, "response window elapsed", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	expired, err := repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ResponseStatusDeclined, expired.Status)
	require.NotNil(t, expired.DeclineReason)
	assert.Equal(t, "response window elapsed", *expired.DeclineReason)
	require.NotNil(t, expired.DeclinedAt)

	affected, err = repo.ExpirePending(ctx, nil, responded.ID, "response window elapsed", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	untouched, err := repo.FindByID(ctx, responded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ResponseStatusResponded, untouched.Status)
}

func TestListStalePendingFiltersStatusAndCutoff(t *testing.T) {
	db := setupResponsesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	open := newCallout(t, db, enums.CalloutStatusOpen)
	assigned := newCallout(t, db, enums.CalloutStatusAssigned)

	old := time.Now().UTC().Add(-2 * time.Hour)
	recent := time.Now().UTC().Add(-5 * time.Minute)

	stale := newResponse(t, db, open.ID, enums.ResponseStatusPending, old)
	newResponse(t, db, open.ID, enums.ResponseStatusPending, recent)
	newResponse(t, db, open.ID, enums.ResponseStatusAcknowledged, old)
	newResponse(t, db, assigned.ID, enums.ResponseStatusPending, old)

	cutoff := time.Now().UTC().Add(-time.Hour)
	rows, err := repo.ListStalePending(ctx, nil, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}

func TestFindCalloutStatusReturnsNotFoundForUnknownID(t *testing.T) {
	db := setupResponsesTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindCalloutStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
