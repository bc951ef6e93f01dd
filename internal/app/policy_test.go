package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSimplePolicy(t *testing.T) {
	cases := []struct {
		name   string
		src    domain.TrackSource
		err    error
		notice bool
		sev    domain.Severity
	}{
		{"nil", domain.SourceCamera, nil, false, ""},
		{"canceled", "", context.Canceled, false, ""},
		{"left during join", "", core.ErrLeftDuringJoin, false, ""},
		{"permission denied", domain.SourceMicrophone, fmt.Errorf("capture: %w", core.ErrPermissionDenied), true, domain.SeverityInfo},
		{"overconstrained", domain.SourceCamera, core.ErrOverconstrained, true, domain.SeverityWarning},
		{"busy", domain.SourceCamera, core.ErrDeviceBusy, true, domain.SeverityInfo},
		{"join failure", "", errors.New("backend unreachable"), true, domain.SeverityError},
		{"device failure", domain.SourceScreenShare, errors.New("publish rejected"), true, domain.SeverityWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := SimplePolicy{}.OnError(tc.src, tc.err)
			assert.Equal(t, tc.notice, ok)
			if ok {
				assert.Equal(t, tc.sev, n.Severity)
				assert.Equal(t, tc.src, n.Source)
				assert.NotEmpty(t, n.Message)
			}
		})
	}
}
