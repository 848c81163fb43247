package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCandidate_EmptyCollections(t *testing.T) {
	t.Parallel()

	c := NewCandidate(EngineDeterministic)
	b, err := json.Marshal(c)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"company": null,
		"workUnits": [],
		"risks": [],
		"measures": [],
		"confidence": 0,
		"engine": "deterministic"
	}`, string(b))
}

func TestValidRating(t *testing.T) {
	t.Parallel()

	assert.False(t, ValidRating(0))
	assert.True(t, ValidRating(1))
	assert.True(t, ValidRating(4))
	assert.False(t, ValidRating(5))
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want int
	}{
		{150, 100},
		{-10, 0},
		{0, 0},
		{100, 100},
		{73, 73},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampConfidence(tt.in), "input %d", tt.in)
	}
}

func TestCompanyInfo_IsEmpty(t *testing.T) {
	t.Parallel()

	var nilInfo *CompanyInfo
	assert.True(t, nilInfo.IsEmpty())
	assert.True(t, (&CompanyInfo{}).IsEmpty())

	name := "ACME"
	assert.False(t, (&CompanyInfo{LegalName: &name}).IsEmpty())
}

func TestRisk_RatingsOrder(t *testing.T) {
	t.Parallel()

	f, p, s := 1, 2, 3
	r := Risk{Hazard: "Chute", Frequency: &f, Probability: &p, Severity: &s}
	ratings := r.Ratings()
	require.Len(t, ratings, 4)
	assert.Equal(t, 1, *ratings[0])
	assert.Equal(t, 2, *ratings[1])
	assert.Equal(t, 3, *ratings[2])
	assert.Nil(t, ratings[3])
}
