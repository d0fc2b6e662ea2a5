package events

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestBus_EmitInvokesTypedSubscriber(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(ProviderCircuitOpened, func(e Event) {
		received = e
	})

	bus.Emit(ProviderCircuitOpened, "provider-manager", map[string]interface{}{"provider": "etherscan"})

	assert.Equal(t, ProviderCircuitOpened, received.Type)
	assert.Equal(t, "provider-manager", received.Module)
	assert.Equal(t, "etherscan", received.Data["provider"])
}

func TestBus_EmitDoesNotInvokeOtherTypes(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(ImportCompleted, func(Event) { called = true })

	bus.Emit(ImportFailed, "importer", nil)

	assert.False(t, called)
}

func TestBus_SubscribeAllReceivesEveryEvent(t *testing.T) {
	bus := NewBus()

	var seen []EventType
	bus.SubscribeAll(func(e Event) { seen = append(seen, e.Type) })

	bus.Emit(ImportStarted, "importer", nil)
	bus.Emit(ProcessBatchCompleted, "process-service", nil)

	assert.Equal(t, []EventType{ImportStarted, ProcessBatchCompleted}, seen)
}

func TestManager_EmitTypedInvokesBusAndLogs(t *testing.T) {
	bus := NewBus()
	var received EventData
	bus.Subscribe(ScamDetected, func(e Event) {
		received = e.GetTypedData()
	})

	manager := NewManager(bus, testLogger())
	manager.EmitTyped(ScamDetected, "processor", &ScamDetectedData{
		AccountID:     "acct-1",
		TransactionID: "tx-1",
		Reason:        "spam airdrop",
	})

	data, ok := received.(*ScamDetectedData)
	if assert.True(t, ok) {
		assert.Equal(t, "tx-1", data.TransactionID)
	}
}

func TestManager_EmitErrorWrapsError(t *testing.T) {
	bus := NewBus()
	var received EventData
	bus.Subscribe(ErrorOccurred, func(e Event) {
		received = e.GetTypedData()
	})

	manager := NewManager(bus, testLogger())
	manager.EmitError("importer", assert.AnError, map[string]interface{}{"accountId": "acct-1"})

	data, ok := received.(*ErrorEventData)
	if assert.True(t, ok) {
		assert.Equal(t, assert.AnError.Error(), data.Error)
	}
}
