package domain

// ResearchRequest is the request to start a research run.
type ResearchRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// ResearchResponse is the response to a started research run.
type ResearchResponse struct {
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
}

// AbortRequest is the request body for aborting a run.
type AbortRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResumeRequest is the request to resume streaming the active run of a
// conversation after a disconnect.
type ResumeRequest struct {
	ConversationID string `json:"conversation_id"`
}
