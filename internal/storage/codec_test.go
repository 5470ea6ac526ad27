package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/model"
)

func testTime() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

func TestDecodeRunChecksVersion(t *testing.T) {
	run := sampleRun("r1", testTime())
	data, err := EncodeRun(run)
	require.NoError(t, err)
	decoded, err := DecodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, "r1", decoded.ID)
	assert.True(t, decoded.StartedAt.Equal(run.StartedAt))

	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err = EncodeRun(run)
	require.NoError(t, err)
	_, err = DecodeRun(data)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeIndividualsChecksEveryRecord(t *testing.T) {
	records := append(sampleIndividuals(), model.IndividualRecord{ID: "stale"})
	data, err := EncodeIndividuals(records)
	require.NoError(t, err)
	_, err = DecodeIndividuals(data)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := DecodeRun([]byte("{"))
	assert.Error(t, err)
	_, err = DecodeFitnessHistory([]byte("[1,"))
	assert.Error(t, err)
	_, err = DecodeGenerationDiagnostics([]byte("nope"))
	assert.Error(t, err)
}
