package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateArithmetic(t *testing.T) {
	d := MustParseDate("2024-02-28")
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, "2023-12-31", MustParseDate("2024-01-01").AddDays(-1).String())
	assert.Equal(t, time.Monday, MustParseDate("2024-01-01").Weekday())
	assert.Equal(t, 60, MustParseDate("2024-03-01").DaysSince(MustParseDate("2024-01-01")))
	assert.Equal(t, -1, MustParseDate("2024-01-01").DaysSince(MustParseDate("2024-01-02")))
	assert.Equal(t, "2024-02-01", NewDate(2024, time.January, 32).String())
}

func TestDateCompare(t *testing.T) {
	a := MustParseDate("2024-01-05")
	b := MustParseDate("2024-02-01")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(MustParseDate("2024-01-05")))
	assert.Equal(t, a, MinDate(a, b))
	assert.Equal(t, b, MaxDate(a, b))
}

func TestDateOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	instant := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01", DateOf(instant).String())
	assert.Equal(t, "2024-01-02", DateOf(instant.In(loc)).String())
}

func TestDateJSONAndScan(t *testing.T) {
	type wrapper struct {
		Day   Date  `json:"day"`
		Maybe *Date `json:"maybe,omitempty"`
	}
	raw, err := json.Marshal(wrapper{Day: MustParseDate("2024-06-30")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-06-30"}`, string(raw))

	var back wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"day":"2024-07-01","maybe":"2024-07-02"}`), &back))
	assert.Equal(t, "2024-07-01", back.Day.String())
	require.NotNil(t, back.Maybe)
	assert.Equal(t, "2024-07-02", back.Maybe.String())

	var scanned Date
	require.NoError(t, scanned.Scan([]byte("2024-08-09")))
	assert.Equal(t, "2024-08-09", scanned.String())
	require.NoError(t, scanned.Scan(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-09-01", scanned.String())
	assert.Error(t, scanned.Scan(42))

	v, err := MustParseDate("2024-01-01").Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", v)

	_, err = ParseDate("01/02/2024")
	assert.Error(t, err)
}
