package domain

import (
	"strings"
	"time"
)

// DistributionStatus is the server-reported status of a distribution
type DistributionStatus string

const (
	DistributionStatusPending DistributionStatus = "pending"
	DistributionStatusSuccess DistributionStatus = "success"
	DistributionStatusFailure DistributionStatus = "failure"
)

// NormalizeStatus lower-cases and trims a raw status string
func NormalizeStatus(raw string) DistributionStatus {
	return DistributionStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// DistributionItem is one asynchronous distribution result
type DistributionItem struct {
	ConfigID  string            `json:"config_id"`
	CreatedAt time.Time         `json:"create_at"`
	Status    string            `json:"status"`
	Data      *DistributionData `json:"data,omitempty"`
}

// DistributionData carries the computed payload
type DistributionData struct {
	Result *DistributionResult `json:"result,omitempty"`
}

// DistributionResult links to artifacts derived from a distribution
type DistributionResult struct {
	DistributedBills       string `json:"distributed_bills,omitempty"`
	ExportDistributedBills string `json:"export_distributed_bills,omitempty"`
}

// ServerStatus returns the normalized server-reported status
func (d *DistributionItem) ServerStatus() DistributionStatus {
	if d == nil {
		return ""
	}
	return NormalizeStatus(d.Status)
}

// Artifacts returns the result links, nil when none were produced
func (d *DistributionItem) Artifacts() *DistributionResult {
	if d == nil || d.Data == nil {
		return nil
	}
	return d.Data.Result
}

// Clone deep-copies the item
func (d *DistributionItem) Clone() *DistributionItem {
	if d == nil {
		return nil
	}
	c := *d
	if d.Data != nil {
		data := *d.Data
		if d.Data.Result != nil {
			res := *d.Data.Result
			data.Result = &res
		}
		c.Data = &data
	}
	return &c
}

// HistoryEntry is one past distribution submission
type HistoryEntry struct {
	ConfigID  string    `json:"config_id"`
	CreatedAt time.Time `json:"create_at"`
}
