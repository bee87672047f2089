package selection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/internal/jobs"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
)

func setupSelectionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	// One pooled connection serializes concurrent transactions; the loser
	// observes the winner's committed state instead of a busy error.
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)

	ddl := []string{`
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
);`, `
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
);`, `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  partner_id TEXT NOT NULL,
  client_name TEXT NOT NULL,
  client_phone TEXT NOT NULL,
  client_address TEXT NOT NULL,
  client_postcode TEXT NOT NULL,
  incident_type TEXT NOT NULL,
  description TEXT,
  source TEXT NOT NULL DEFAULT 'emergency_callout',
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedCallout(t *testing.T, db *gorm.DB, status enums.CalloutStatus) *models.Callout {
	t.Helper()

	callout := &models.Callout{
		ID:             uuid.New(),
		ClientName:     "Marta Kovacs",
		ClientPhone:    "+447700900456",
		ClientAddress:  "3 Winder Court",
		ClientPostcode: "LS2 8JT",
		IncidentType:   enums.IncidentTypeElectrical,
		Priority:       enums.CalloutPriorityHigh,
		Status:         status,
		BroadcastAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(callout).Error)
	return callout
}

func seedRespondedResponse(t *testing.T, db *gorm.DB, calloutID uuid.UUID, eta int) *models.CalloutResponse {
	t.Helper()

	now := time.Now().UTC()
	response := &models.CalloutResponse{
		ID:                     uuid.New(),
		CalloutID:              calloutID,
		PartnerID:              uuid.New(),
		Status:                 enums.ResponseStatusResponded,
		ProposedArrivalMinutes: &eta,
		RespondedAt:            &now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	require.NoError(t, db.Create(response).Error)
	return response
}

// sqliteJobCreator assigns job ids itself; sqlite has no gen_random_uuid
// default to lean on. The insert still runs inside the caller's transaction.
type sqliteJobCreator struct{}

func (sqliteJobCreator) CreateJob(ctx context.Context, tx *gorm.DB, input jobs.CreateJobInput) (*models.Job, error) {
	job := &models.Job{
		ID:             uuid.New(),
		PartnerID:      input.PartnerID,
		ClientName:     input.ClientName,
		ClientPhone:    input.ClientPhone,
		ClientAddress:  input.ClientAddress,
		ClientPostcode: input.ClientPostcode,
		IncidentType:   input.IncidentType,
		Description:    input.Description,
		Source:         jobs.JobSourceEmergencyCallout,
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type lockedOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (l *lockedOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *lockedOutbox) recorded() []outbox.DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]outbox.DomainEvent(nil), l.events...)
}

func TestAssignCalloutSecondWriterLoses(t *testing.T) {
	db := setupSelectionTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	callout := seedCallout(t, db, enums.CalloutStatusOpen)

	affected, err := repo.AssignCallout(ctx, callout.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.AssignCallout(ctx, callout.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestDemoteSiblingsKeepsDeclinedRows(t *testing.T) {
	db := setupSelectionTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	callout := seedCallout(t, db, enums.CalloutStatusOpen)
	winner := seedRespondedResponse(t, db, callout.ID, 20)
	rival := seedRespondedResponse(t, db, callout.ID, 45)

	declined := seedRespondedResponse(t, db, callout.ID, 60)
	require.NoError(t, db.Model(&models.CalloutResponse{}).
		Where("id = ?", declined.ID).
		Update("status", enums.ResponseStatusDeclined).Error)

	siblings, err := repo.Siblings(ctx, callout.ID, winner.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, rival.ID, siblings[0].ID)
	assert.Equal(t, rival.PartnerID, siblings[0].PartnerID)

	demoted, err := repo.DemoteSiblings(ctx, callout.ID, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), demoted)

	var declinedRow models.CalloutResponse
	require.NoError(t, db.Where("id = ?", declined.ID).First(&declinedRow).Error)
	assert.Equal(t, enums.ResponseStatusDeclined, declinedRow.Status)
}

func TestSelectConcurrentOperatorsOnlyOneWins(t *testing.T) {
	db := setupSelectionTestDB(t)
	ctx := context.Background()

	callout := seedCallout(t, db, enums.CalloutStatusOpen)
	fast := seedRespondedResponse(t, db, callout.ID, 20)
	slow := seedRespondedResponse(t, db, callout.ID, 45)

	publisher := &lockedOutbox{}
	svc, err := NewService(NewRepository(db), sqliteJobCreator{}, gormTxRunner{db: db}, publisher, nil)
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, responseID := range []uuid.UUID{fast.ID, slow.ID} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, selectErr := svc.Select(ctx, SelectInput{
				CalloutID:  callout.ID,
				ResponseID: id,
				Actor:      operatorActor(),
			})
			results <- selectErr
		}(responseID)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for selectErr := range results {
		if selectErr == nil {
			wins++
			continue
		}
		switch pkgerrors.As(selectErr).Code() {
		case pkgerrors.CodeAlreadyAssigned, pkgerrors.CodeStaleResponse:
			conflicts++
		default:
			t.Fatalf("unexpected selection error: %v", selectErr)
		}
	}
	require.Equal(t, 1, wins, "exactly one operator may win")
	require.Equal(t, 1, conflicts, "the other operator must observe the conflict")

	var stored models.Callout
	require.NoError(t, db.Where("id = ?", callout.ID).First(&stored).Error)
	assert.Equal(t, enums.CalloutStatusAssigned, stored.Status)
	require.NotNil(t, stored.LinkedJobID)

	var selected int64
	require.NoError(t, db.Model(&models.CalloutResponse{}).
		Where("callout_id = ? AND status = ?", callout.ID, enums.ResponseStatusSelected).
		Count(&selected).Error)
	assert.Equal(t, int64(1), selected, "at most one selected row per callout")

	var demoted int64
	require.NoError(t, db.Model(&models.CalloutResponse{}).
		Where("callout_id = ? AND status = ?", callout.ID, enums.ResponseStatusNotSelected).
		Count(&demoted).Error)
	assert.Equal(t, int64(1), demoted, "the losing response is demoted")

	var jobCount int64
	require.NoError(t, db.Model(&models.Job{}).
		Where("partner_id IN ?", []uuid.UUID{fast.PartnerID, slow.PartnerID}).
		Count(&jobCount).Error)
	assert.Equal(t, int64(1), jobCount, "the losing transaction must roll its job back")

	events := publisher.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventCalloutAssigned, events[0].EventType)
}
