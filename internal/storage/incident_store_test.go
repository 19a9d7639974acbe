package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

func newTestStore(t *testing.T) *SQLiteIncidentStore {
	t.Helper()

	store, err := NewSQLiteIncidentStore(zap.NewNop(), filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleIncident(id string, status model.Status, createdAt time.Time) *model.Incident {
	return &model.Incident{
		ID:          id,
		Title:       "CPU saturation on app-service",
		Description: "cpu above threshold for 5 minutes",
		Severity:    model.SeverityHigh,
		Status:      status,
		Source:      "monitor",
		Metrics: map[string]interface{}{
			"cpu_percentage": 92.5,
			"error_rate":     3.0,
		},
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		AssignedAgents: []model.AgentRole{model.AgentDiagnostic, model.AgentCommunication},
		ResolutionActions: []model.ActionResult{
			{
				ActionID: "a1",
				Type:     model.ActionScaleOut,
				Status:   model.ActionStatusCompleted,
				Success:  true,
				Message:  "scaled to 5 instances",
				Duration: 2.5,
			},
		},
		EstimatedResolutionTime: 120,
	}
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Millisecond)
	incident := sampleIncident("INC-1", model.StatusAnalyzing, created)
	require.NoError(t, store.Save(ctx, incident))

	got, err := store.Get(ctx, "INC-1")
	require.NoError(t, err)

	assert.Equal(t, incident.ID, got.ID)
	assert.Equal(t, incident.Title, got.Title)
	assert.Equal(t, incident.Description, got.Description)
	assert.Equal(t, model.SeverityHigh, got.Severity)
	assert.Equal(t, model.StatusAnalyzing, got.Status)
	assert.Equal(t, "monitor", got.Source)
	assert.Equal(t, 92.5, got.Metrics["cpu_percentage"])
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, []model.AgentRole{model.AgentDiagnostic, model.AgentCommunication}, got.AssignedAgents)
	require.Len(t, got.ResolutionActions, 1)
	assert.Equal(t, "a1", got.ResolutionActions[0].ActionID)
	assert.Equal(t, 2.5, got.ResolutionActions[0].Duration)
	assert.Equal(t, 120, got.EstimatedResolutionTime)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "INC-missing")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC()
	incident := sampleIncident("INC-2", model.StatusDetected, created)
	require.NoError(t, store.Save(ctx, incident))

	incident.Status = model.StatusResolved
	incident.ActualResolutionTime = 95
	incident.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, store.Save(ctx, incident))

	got, err := store.Get(ctx, "INC-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)
	assert.Equal(t, 95, got.ActualResolutionTime)

	// Still one row.
	resolved, err := store.ListByStatus(ctx, model.StatusResolved, 10)
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestListActiveExcludesTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, tc := range []struct {
		id     string
		status model.Status
	}{
		{"INC-detected", model.StatusDetected},
		{"INC-analyzing", model.StatusAnalyzing},
		{"INC-resolving", model.StatusResolving},
		{"INC-resolved", model.StatusResolved},
		{"INC-escalated", model.StatusEscalated},
	} {
		require.NoError(t, store.Save(ctx, sampleIncident(tc.id, tc.status, now)))
		now = now.Add(time.Second)
	}

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)

	ids := make(map[string]bool)
	for _, incident := range active {
		ids[incident.ID] = true
		assert.False(t, incident.Status.Terminal())
	}
	assert.True(t, ids["INC-detected"])
	assert.True(t, ids["INC-analyzing"])
	assert.True(t, ids["INC-resolving"])
}

func TestListByStatusNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		incident := sampleIncident(
			"INC-esc-"+string(rune('a'+i)),
			model.StatusEscalated,
			base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(ctx, incident))
	}

	got, err := store.ListByStatus(ctx, model.StatusEscalated, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "INC-esc-e", got[0].ID)
	assert.Equal(t, "INC-esc-d", got[1].ID)
	assert.Equal(t, "INC-esc-c", got[2].ID)
}

func TestSaveHandlesEmptyCollections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	incident := &model.Incident{
		ID:        "INC-bare",
		Title:     "bare incident",
		Severity:  model.SeverityLow,
		Status:    model.StatusDetected,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, incident))

	got, err := store.Get(ctx, "INC-bare")
	require.NoError(t, err)
	assert.Empty(t, got.Metrics)
	assert.Empty(t, got.AssignedAgents)
	assert.Empty(t, got.ResolutionActions)
}
