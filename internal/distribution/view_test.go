package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"distconsole/pkg/contracts/domain"
)

func itemWithStatus(status string) *domain.DistributionItem {
	return &domain.DistributionItem{ConfigID: "7", Status: status}
}

func TestResolveView(t *testing.T) {
	tests := []struct {
		name             string
		state            State
		item             *domain.DistributionItem
		want             ViewStatus
		wantDisagreement bool
	}{
		{"initial pending", StatePending, nil, ViewPending, false},
		{"local failure without item", StateFailure, nil, ViewFailure, false},
		{"success and server success", StateSuccessItem, itemWithStatus("success"), ViewReady, false},
		{"server status compared lower-cased", StateSuccessLatest, itemWithStatus("SUCCESS"), ViewReady, false},
		{"server failure overrides local success", StateSuccessItem, itemWithStatus("Failure"), ViewFailure, true},
		{"server pending overrides local success", StateSuccessLatest, itemWithStatus("pending"), ViewPending, true},
		{"local failure wins over server pending", StateFailure, itemWithStatus("pending"), ViewFailure, false},
		{"server failure wins over local pending", StatePending, itemWithStatus("failure"), ViewFailure, false},
		{"unknown server status is ready", StateSuccessItem, itemWithStatus("archived"), ViewReady, false},
		{"missing server status is ready", StateSuccessItem, itemWithStatus(""), ViewReady, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ResolveView(tt.state, tt.item)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, tt.wantDisagreement, v.Disagreement)
			assert.Equal(t, tt.state, v.Local)
		})
	}
}
