package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusEventsShareHistoryIdentity(t *testing.T) {
	marketID, staker := uuid.New(), uuid.New()
	records, err := recordsFor(testNow, StakePlaced{MarketID: marketID, Staker: staker, Outcome: 1, Amount: 250})
	require.NoError(t, err)
	require.Len(t, records, 1)

	published := busEvents(records)
	require.Len(t, published, 1)
	assert.Equal(t, records[0].ID, published[0].ID)
	assert.Equal(t, string(records[0].Type), published[0].Type)
	assert.Equal(t, marketID, published[0].AggregateID)
	assert.Equal(t, testNow, published[0].OccurredAt)
	assert.JSONEq(t, string(records[0].Payload), string(published[0].Payload))
}
