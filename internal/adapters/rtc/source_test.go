package rtc

import (
	"testing"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
)

func TestSourceMapping(t *testing.T) {
	for _, src := range domain.Sources {
		assert.Equal(t, src, fromProto(toProto(src)), src)
	}
	assert.Equal(t, domain.SourceUnknown, fromProto(livekit.TrackSource_UNKNOWN))
	assert.Equal(t, livekit.TrackSource_UNKNOWN, toProto(domain.SourceUnknown))
}

func TestCallbacks_ForwardDisconnect(t *testing.T) {
	var got []string
	cb := callbacks(func(ev core.Event) { got = append(got, ev.Kind.String()) })

	cb.OnDisconnected()
	assert.Equal(t, []string{"disconnected"}, got)
}
