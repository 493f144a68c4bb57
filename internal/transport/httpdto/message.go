package httpdto

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	// RecipientID addresses an admin reply to a visitor conversation. Unset
	// for visitor sends.
	RecipientID string `json:"recipient_id,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required"`
}
