package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsStringsAndZero(t *testing.T) {
	var req SubmitReportRequest
	body := `{"latitude":"12.9","longitude":0,"safetyRating":null,"comment":"ok"}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.True(t, req.Latitude.Set)
	assert.Equal(t, 12.9, req.Latitude.Value)
	assert.True(t, req.Longitude.Set)
	assert.Equal(t, 0.0, req.Longitude.Value)
	assert.False(t, req.SafetyRating.Set)
}

func TestNumberRejectsGarbage(t *testing.T) {
	var n Number
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &n))
	require.NoError(t, json.Unmarshal([]byte(`""`), &n))
	assert.False(t, n.Set)

	for _, raw := range []string{`true`, `false`, `{"v":1}`, `[1]`} {
		assert.Error(t, json.Unmarshal([]byte(raw), &n), raw)
		assert.False(t, n.Set, raw)
	}

	var req AnalyzeRequest
	assert.Error(t, json.Unmarshal([]byte(`{"latitude":true,"longitude":true}`), &req))
}

func TestLocationJSON(t *testing.T) {
	r := SafetyReport{Location: PlaceLocation{
		Location:  Location{Latitude: 12.9, Longitude: 77.6, Address: UnknownAddress},
		PlaceName: "",
	}}
	data, err := json.Marshal(r.Location)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[77.6,12.9],"address":"Unknown location","placeName":""}`, string(data))

	var back PlaceLocation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Location, back)

	sos, err := json.Marshal(Location{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[2,1]}`, string(sos))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, ReportTypePositive.Valid())
	assert.False(t, ReportType("danger").Valid())
	assert.True(t, TimeNight.Valid())
	assert.False(t, TimeOfDay("dawn").Valid())
	assert.True(t, TriggerFallDetection.Valid())
	assert.True(t, SOSStatusFalseAlarm.Terminal())
	assert.False(t, SOSStatusActive.Terminal())
	assert.False(t, Relationship("neighbor").Valid())
	assert.True(t, DeliveryDelivered.Valid())
}
