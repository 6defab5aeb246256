package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wxbridge/internal/events"
)

func ev(eventType, data string) events.Event {
	return events.Event{ID: 1, Type: eventType, At: time.Now(), Data: []byte(data)}
}

func TestUpdateFlowStats_CountsPerDirection(t *testing.T) {
	var stats FlowStats
	adapters := make(map[string]string)

	updateFlowStats(&stats, adapters, ev("webhook.received", `{}`))
	updateFlowStats(&stats, adapters, ev("forward.delivered", `{}`))
	updateFlowStats(&stats, adapters, ev("message.dropped", `{"reason":"unsupported_type"}`))
	updateFlowStats(&stats, adapters, ev("outbound.received", `{}`))
	updateFlowStats(&stats, adapters, ev("outbound.failed", `{}`))

	assert.Equal(t, 1, stats.InboundReceived)
	assert.Equal(t, 1, stats.InboundDelivered)
	assert.Equal(t, 1, stats.InboundDropped)
	assert.Equal(t, 0, stats.InboundFailed)
	assert.Equal(t, 1, stats.OutboundReceived)
	assert.Equal(t, 1, stats.OutboundFailed)
}

func TestUpdateFlowStats_TracksBreakerTransitions(t *testing.T) {
	var stats FlowStats
	adapters := make(map[string]string)

	updateFlowStats(&stats, adapters, ev("breaker.state_change", `{"service":"cxone","from":"closed","to":"open"}`))

	assert.Equal(t, "open", adapters["cxone"])
}

func TestExtractEventDesc_MasksExternalID(t *testing.T) {
	desc := extractEventDesc(ev("forward.delivered", `{"external_id":"oABCDEFGHIJK"}`))
	assert.Contains(t, desc, "oABCDEFG…")
	assert.NotContains(t, desc, "oABCDEFGHIJK")
}
