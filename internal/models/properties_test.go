package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties_UnmarshalPreservesOrderAndStringifies(t *testing.T) {
	var props Properties
	err := json.Unmarshal([]byte(`{"b":2,"a":"x","c":true,"d":{"n":1}}`), &props)
	require.NoError(t, err)

	assert.Equal(t, Properties{
		{Key: "b", Value: "2"},
		{Key: "a", Value: "x"},
		{Key: "c", Value: "true"},
		{Key: "d", Value: `{"n":1}`},
	}, props)
}

func TestProperties_MarshalKeepsOrder(t *testing.T) {
	props := Properties{
		{Key: "z", Value: "1"},
		{Key: "a", Value: "2"},
	}
	got, err := json.Marshal(props)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"1","a":"2"}`, string(got))
}

func TestProperties_RoundTrip(t *testing.T) {
	in := Properties{
		{Key: "second", Value: "2"},
		{Key: "first", Value: "1"},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Properties
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestProperties_NullAndEmpty(t *testing.T) {
	var props Properties
	require.NoError(t, json.Unmarshal([]byte(`null`), &props))
	assert.Nil(t, props)

	require.NoError(t, json.Unmarshal([]byte(`{}`), &props))
	assert.Empty(t, props)
}

func TestProperties_RejectsNonObject(t *testing.T) {
	var props Properties
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &props))
}
