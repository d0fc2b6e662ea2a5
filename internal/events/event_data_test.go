package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderRequestData(t *testing.T) {
	data := ProviderRequestData{
		Domain:    "ethereum",
		Provider:  "etherscan",
		Operation: "fetchTransactions",
		LatencyMs: 120,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "etherscan")
	assert.Contains(t, string(jsonData), "fetchTransactions")

	var unmarshaled ProviderRequestData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestProviderFailoverData(t *testing.T) {
	data := ProviderFailoverData{
		Domain:       "ethereum",
		FromProvider: "etherscan",
		ToProvider:   "alchemygo",
		Reason:       "circuit_open",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "alchemygo")

	var unmarshaled ProviderFailoverData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestProviderCircuitData(t *testing.T) {
	data := ProviderCircuitData{
		Domain:              "ethereum",
		Provider:            "etherscan",
		State:               "open",
		ConsecutiveFailures: 5,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "\"state\":\"open\"")
	assert.Contains(t, string(jsonData), "5")

	var unmarshaled ProviderCircuitData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestImportLifecycleData(t *testing.T) {
	data := ImportLifecycleData{
		AccountID:    "acct-1",
		DataSourceID: "ds-1",
		Status:       "completed",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "ds-1")

	var unmarshaled ImportLifecycleData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestImportBatchSavedData(t *testing.T) {
	data := ImportBatchSavedData{
		AccountID:      "acct-1",
		DataSourceID:   "ds-1",
		BatchSize:      100,
		SavedCount:     95,
		DuplicateCount: 5,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "100")
	assert.Contains(t, string(jsonData), "95")

	var unmarshaled ImportBatchSavedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestDuplicateSkippedData(t *testing.T) {
	data := DuplicateSkippedData{
		AccountID:  "acct-1",
		ExternalID: "ext-1",
		Layer:      "manager-window",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "manager-window")

	var unmarshaled DuplicateSkippedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestProcessBatchData(t *testing.T) {
	data := ProcessBatchData{
		AccountID:        "acct-1",
		ProcessedCount:   10,
		FailedCount:      1,
		ScamFlaggedCount: 2,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "10")

	var unmarshaled ProcessBatchData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestValidationFailedData(t *testing.T) {
	data := ValidationFailedData{
		AccountID: "acct-1",
		RawTxID:   "rt-1",
		FieldPath: "movements[0].amount",
		Reason:    "negative amount",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "movements[0].amount")

	var unmarshaled ValidationFailedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestScamDetectedData(t *testing.T) {
	data := ScamDetectedData{
		AccountID:     "acct-1",
		TransactionID: "tx-1",
		Reason:        "zero-value airdrop from known spam contract",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "tx-1")

	var unmarshaled ScamDetectedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestErrorEventData(t *testing.T) {
	data := ErrorEventData{
		Error:   "boom",
		Context: map[string]interface{}{"accountId": "acct-1"},
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "boom")

	var unmarshaled ErrorEventData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data.Error, unmarshaled.Error)
	assert.Equal(t, data.Context["accountId"], unmarshaled.Context["accountId"])
}

func TestEventDataInterface(t *testing.T) {
	testCases := []struct {
		name     string
		data     EventData
		contains []string
	}{
		{
			name:     "ProviderRequestData",
			data:     &ProviderRequestData{Domain: "ethereum", Provider: "etherscan"},
			contains: []string{"ethereum", "etherscan"},
		},
		{
			name:     "ImportBatchSavedData",
			data:     &ImportBatchSavedData{AccountID: "acct-1", SavedCount: 10},
			contains: []string{"acct-1", "10"},
		},
		{
			name:     "ScamDetectedData",
			data:     &ScamDetectedData{TransactionID: "tx-1"},
			contains: []string{"tx-1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			jsonData, err := json.Marshal(tc.data)
			require.NoError(t, err)
			for _, substr := range tc.contains {
				assert.Contains(t, string(jsonData), substr)
			}
		})
	}
}
