package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	for in, want := range map[string]DateRange{
		"today":        RangeToday,
		"Last 7 days":  RangeLast7Days,
		"LAST_30_DAYS": RangeLast30Days,
		" all time ":   RangeAllTime,
	} {
		got, err := ParseDateRange(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDateRange("yesterday")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestParseMetricsPatch(t *testing.T) {
	p, err := ParseMetricsPatch("impressions", json.RawMessage(`1200`))
	require.NoError(t, err)
	assert.Equal(t, SetRangeImpressions{Value: 1200}, p)

	p, err = ParseMetricsPatch("conversions", json.RawMessage(`12.5`))
	require.NoError(t, err)
	assert.Equal(t, SetRangeConversions{Value: 12.5}, p)

	cases := []struct {
		field string
		raw   string
		err   error
	}{
		{"ctr", `1`, ErrUnknownField},
		{"impressions", `1.5`, ErrInvalidValue},
		{"impressions", `-1`, ErrInvalidValue},
		{"cost", `"12"`, ErrInvalidValue},
		{"cpa", `-0.01`, ErrInvalidValue},
	}
	for _, tc := range cases {
		_, err := ParseMetricsPatch(tc.field, json.RawMessage(tc.raw))
		assert.ErrorIs(t, err, tc.err, tc.field+" "+tc.raw)
	}
}
