package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

func TestSessionRow_ToEntity(t *testing.T) {
	s := newSession(t, uuid.New(), uuid.New(), uuid.New())
	state, err := json.Marshal(s)
	require.NoError(t, err)

	entered := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	row := sessionRow{
		ID:             s.ID,
		CoupleID:       s.CoupleID,
		Phase:          string(valueobject.PhaseEvidence),
		State:          state,
		Version:        7,
		PhaseEnteredAt: entered,
	}

	got, err := row.toEntity()
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, valueobject.PhaseEvidence, got.Phase)
	assert.True(t, entered.Equal(got.PhaseEnteredAt))
	assert.Equal(t, int64(7), got.Version)

	row.Phase = "ARCHIVED"
	_, err = row.toEntity()
	assert.Error(t, err)

	row.Phase = string(valueobject.PhaseEvidence)
	row.State = []byte("{")
	_, err = row.toEntity()
	assert.Error(t, err)
}
