package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/timegrid/overtime-engine/engine"
)

func TestFormatHours(t *testing.T) {
	cases := []struct {
		hours float64
		want  string
	}{
		{-23.5, "-23:30h"},
		{-24, "-24:00h"},
		{-0.5, "-0:30h"},
		{-1.25, "-1:15h"},
		{8.33, "8:20h"},
		{-100.5, "-100:30h"},
		{0, "0:00h"},
		{8, "8:00h"},
		{0.25, "0:15h"},
	}
	for _, tc := range cases {
		got := engine.FormatHours(decimal.NewFromFloat(tc.hours))
		assert.Equal(t, tc.want, got, "FormatHours(%v)", tc.hours)
	}
}

func TestFormatHoursRoundsToWholeMinutes(t *testing.T) {
	// 8.333... hours is 500.0 minutes after rounding
	third := decimal.NewFromInt(25).Div(decimal.NewFromInt(3))
	assert.Equal(t, "8:20h", engine.FormatHours(third))
}
