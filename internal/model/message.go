package model

import "time"

// MessageRecord is the durable record of one campaign's template and
// per-recipient delivery flags. Its ID is the campaign id.
type MessageRecord struct {
	ID         string
	Template   string
	Recipients []RecipientStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type RecipientStatus struct {
	RecipientID string `json:"recipientId"`
	Status      bool   `json:"status"`
}

// MarkDelivered sets the recipient's flag to true, appending an entry when
// the recipient is not on the record yet.
func (r *MessageRecord) MarkDelivered(recipientID string) {
	for i := range r.Recipients {
		if r.Recipients[i].RecipientID == recipientID {
			r.Recipients[i].Status = true
			return
		}
	}
	r.Recipients = append(r.Recipients, RecipientStatus{RecipientID: recipientID, Status: true})
}

func (r *MessageRecord) Delivered(recipientID string) bool {
	for _, rs := range r.Recipients {
		if rs.RecipientID == recipientID {
			return rs.Status
		}
	}
	return false
}
