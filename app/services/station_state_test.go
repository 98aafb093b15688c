package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStationStateSnapshot(t *testing.T) {
	state := NewStationState()
	assert.Equal(t, StationSnapshot{}, state.Snapshot())

	state.SetActingAsPrintServer(true)
	state.SetTransportConnected(true)

	snap := state.Snapshot()
	assert.True(t, snap.ActingAsPrintServer)
	assert.True(t, snap.TransportConnected)
}

func TestStationStateNotifiesObservers(t *testing.T) {
	state := NewStationState()

	var transitions []StationSnapshot
	state.OnChange(func(prev, curr StationSnapshot) {
		transitions = append(transitions, curr)
	})

	state.SetTransportConnected(true)
	state.SetTransportConnected(true) // no-op, no notification
	state.SetActingAsPrintServer(true)

	assert.Equal(t, []StationSnapshot{
		{TransportConnected: true},
		{TransportConnected: true, ActingAsPrintServer: true},
	}, transitions)
}

func TestStationStateObserverSeesPreviousValue(t *testing.T) {
	state := NewStationState()

	var reconnects int
	state.OnChange(func(prev, curr StationSnapshot) {
		if !prev.TransportConnected && curr.TransportConnected {
			reconnects++
		}
	})

	state.SetTransportConnected(true)
	state.SetTransportConnected(false)
	state.SetTransportConnected(true)

	assert.Equal(t, 2, reconnects)
}
