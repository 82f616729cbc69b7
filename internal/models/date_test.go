package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_AddYears(t *testing.T) {
	tests := []struct {
		start Date
		years int
		want  Date
	}{
		{NewDate(2024, time.January, 15), 4, NewDate(2028, time.January, 15)},
		{NewDate(2023, time.December, 31), 1, NewDate(2024, time.December, 31)},
		{NewDate(2024, time.February, 29), 1, NewDate(2025, time.February, 28)},
		{NewDate(2024, time.February, 29), 4, NewDate(2028, time.February, 29)},
		{NewDate(2020, time.June, 1), 10, NewDate(2030, time.June, 1)},
	}

	for _, tt := range tests {
		got := tt.start.AddYears(tt.years)
		assert.Equal(t, tt.want.String(), got.String(), "%s + %d years", tt.start, tt.years)
	}
}

func TestDate_DaysUntil(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	assert.Equal(t, 10, d.DaysUntil(d.AddDays(10)))
	assert.Equal(t, -1, d.DaysUntil(d.AddDays(-1)))
	assert.Equal(t, 29, NewDate(2024, time.February, 1).DaysUntil(d))

	// spans longer than time.Duration can hold
	today := NewDate(2026, time.October, 16)
	assert.Equal(t, 173, today.DaysUntil(NewDate(2027, time.April, 7)))
	assert.Equal(t, 172837, today.DaysUntil(NewDate(2500, time.January, 1)))
	assert.Equal(t, -192406, today.DaysUntil(NewDate(1500, time.January, 1)))
	assert.Equal(t, -1, NewDate(1970, time.January, 1).DaysUntil(NewDate(1969, time.December, 31)))
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Start Date  `json:"start"`
		End   *Date `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2024-01-15","end":"2025-02-01T10:30:00Z"}`), &payload))
	assert.Equal(t, "2024-01-15", payload.Start.String())
	require.NotNil(t, payload.End)
	assert.Equal(t, "2025-02-01", payload.End.String())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2024-01-15","end":"2025-02-01"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start":"15/01/2024"}`), &payload))
}

func TestDate_Scan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, 5, 6, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-05-06", d.String())

	require.NoError(t, d.Scan([]byte("2023-11-30 00:00:00+00:00")))
	assert.Equal(t, "2023-11-30", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}
