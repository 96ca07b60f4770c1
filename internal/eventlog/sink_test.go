package eventlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CollectsEvents(t *testing.T) {
	t.Parallel()
	r := &Recorder{}
	r.Emit(Event{Stage: StageEnvironmentDeploy, Step: "render", Transmitter: "workload", Message: "rendering chart"})
	r.Emit(Event{Stage: StageEnvironmentDeploy, Step: "apply", Transmitter: "helmdriver", Message: "upgrade failed", Cause: errors.New("boom")})

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "render", events[0].Step)
	assert.Equal(t, "apply", events[1].Step)
	assert.Error(t, events[1].Cause)
}

func TestNopSink_DiscardsSilently(t *testing.T) {
	t.Parallel()
	var s Sink = NopSink{}
	assert.NotPanics(t, func() {
		s.Emit(Event{Message: "whatever"})
	})
}
