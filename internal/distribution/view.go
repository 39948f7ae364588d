package distribution

import (
	"distconsole/pkg/contracts/domain"
)

// State is the local fetch state of the machine
type State string

const (
	StatePending       State = "pending"
	StateSuccessItem   State = "success_item"
	StateSuccessLatest State = "success_latest"
	StateFailure       State = "failure"
)

// Succeeded reports whether s is one of the success states
func (s State) Succeeded() bool {
	return s == StateSuccessItem || s == StateSuccessLatest
}

// ViewStatus is what the UI should render
type ViewStatus string

const (
	ViewLoading ViewStatus = "loading"
	ViewFailure ViewStatus = "failure"
	ViewPending ViewStatus = "pending"
	ViewReady   ViewStatus = "ready"
)

// View is the display status derived from the local state and the
// server-reported status of the item.
type View struct {
	Status ViewStatus                `json:"status"`
	Local  State                     `json:"local"`
	Server domain.DistributionStatus `json:"server,omitempty"`
	// Disagreement is set when the local state reports success but the
	// server still reports pending or failure.
	Disagreement bool `json:"disagreement"`
}

// ResolveView combines the local state with the item's server status.
// Failure wins if either source reports it; otherwise pending wins if
// either source reports it; otherwise the view is ready.
func ResolveView(state State, item *domain.DistributionItem) View {
	server := item.ServerStatus()
	v := View{Local: state, Server: server}

	switch {
	case state == StateFailure || server == domain.DistributionStatusFailure:
		v.Status = ViewFailure
	case state == StatePending || server == domain.DistributionStatusPending:
		v.Status = ViewPending
	default:
		v.Status = ViewReady
	}

	v.Disagreement = state.Succeeded() &&
		(server == domain.DistributionStatusFailure || server == domain.DistributionStatusPending)
	return v
}
