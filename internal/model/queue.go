package model

import (
	"slices"
	"time"
)

const (
	CampaignRunning = "Running"
	CampaignStopped = "Stopped"
	CampaignIdle    = "Idle"
)

// Task is one pending delivery.
type Task struct {
	RecipientID string      `json:"recipientId"`
	Message     string      `json:"resolvedMessage"`
	Credentials Credentials `json:"sessionCredentials"`
}

// QueueSnapshot is the persisted state of one campaign's delivery queue.
// Owner is the token of the loop that set IsProcessing.
type QueueSnapshot struct {
	CampaignID          string    `json:"campaignId"`
	Queue               []Task    `json:"queue"`
	ProcessedRecipients []string  `json:"processedRecipients"`
	IsProcessing        bool      `json:"isProcessing"`
	IsStopped           bool      `json:"isStopped"`
	Owner               string    `json:"owner,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (s *QueueSnapshot) Status() string {
	if s.IsStopped {
		return CampaignStopped
	}
	return CampaignRunning
}

func (s *QueueSnapshot) IsProcessed(recipientID string) bool {
	return slices.Contains(s.ProcessedRecipients, recipientID)
}

func (s *QueueSnapshot) MarkProcessed(recipientID string) {
	if !s.IsProcessed(recipientID) {
		s.ProcessedRecipients = append(s.ProcessedRecipients, recipientID)
	}
}

// CampaignStatus is the polling view of a campaign.
type CampaignStatus struct {
	IsActive       bool   `json:"isActive"`
	RemainingCount int    `json:"remainingCount"`
	ProcessedCount int    `json:"processedCount"`
	State          string `json:"state"`
}
