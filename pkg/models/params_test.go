package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortParameter(t *testing.T) {
	param, err := ParseSortParameter("name:ASC")
	require.NoError(t, err)
	assert.Equal(t, FieldName, param.Field)
	assert.Equal(t, SortAscending, param.Order)

	param, err = ParseSortParameter("created:DESC")
	require.NoError(t, err)
	assert.Equal(t, FieldCreated, param.Field)
	assert.Equal(t, SortDescending, param.Order)

	// Case-insensitive order
	param, err = ParseSortParameter("modified:desc")
	require.NoError(t, err)
	assert.Equal(t, SortDescending, param.Order)

	// Order defaults to ascending
	param, err = ParseSortParameter("identifier")
	require.NoError(t, err)
	assert.Equal(t, SortAscending, param.Order)

	_, err = ParseSortParameter("")
	assert.Error(t, err)

	_, err = ParseSortParameter("name:SIDEWAYS")
	assert.Error(t, err)

	_, err = ParseSortParameter("bogus:ASC")
	assert.Error(t, err)
}

func TestIsFlowField(t *testing.T) {
	for _, field := range FlowFields() {
		assert.True(t, IsFlowField(field))
	}
	assert.False(t, IsFlowField("bogus"))
	assert.False(t, IsFlowField(""))
}
