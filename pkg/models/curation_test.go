package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobID_DecodesStringAndNumber(t *testing.T) {
	var status JobStatusResponse
	require.NoError(t, json.Unmarshal([]byte(`{"jobId": "J1"}`), &status))
	assert.Equal(t, "J1", status.JobID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"jobId": 17}`), &status))
	assert.Equal(t, "17", status.JobID.String())

	err := json.Unmarshal([]byte(`{"jobId": true}`), &status)
	assert.ErrorContains(t, err, "string or number")
}
