package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudEvent_RoundTripsData(t *testing.T) {
	type payload struct {
		Seats int `json:"seats"`
	}

	ce, err := NewCloudEvent("service-booking", "booking.accepted", payload{Seats: 2})
	require.NoError(t, err)
	assert.Equal(t, "1.0", ce.SpecVersion)
	assert.NotEmpty(t, ce.ID)

	var got payload
	require.NoError(t, ce.ParseData(&got))
	assert.Equal(t, 2, got.Seats)
}

func TestParseCloudEvent_RejectsMissingType(t *testing.T) {
	_, err := ParseCloudEvent([]byte(`{"id":"1","data":{}}`))
	assert.Error(t, err)

	_, err = ParseCloudEvent([]byte(`not json`))
	assert.Error(t, err)
}
