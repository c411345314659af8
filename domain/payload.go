package domain

// StatusPayload is the payload for status events.
type StatusPayload struct {
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
	Stage   int    `json:"stage,omitempty"`
}

// PlanPayload is the payload for plan events.
type PlanPayload struct {
	Plan Plan `json:"plan"`
}

// SearchResultsPayload is the payload for search_results events. It carries a
// short preview of the records one task retrieved.
type SearchResultsPayload struct {
	Stage   int      `json:"stage"`
	Task    int      `json:"task"`
	Query   string   `json:"query"`
	Records []Record `json:"records"`
}

// FullDataDictPayload is the payload for full_data_dict events: the complete
// index-to-record table, sent once after gathering completes and again if the
// record set is later augmented.
type FullDataDictPayload struct {
	Records map[int]Record `json:"records"`
}

// ContentPayload is the payload for content events.
type ContentPayload struct {
	Section int    `json:"section"`
	Text    string `json:"text"`
}

// ChartPayload is the payload for chart events.
type ChartPayload struct {
	Section int      `json:"section"`
	Chart   Artifact `json:"chart"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompletePayload is the payload for complete and final_complete events.
type CompletePayload struct {
	Status RunStatus `json:"status"`
	Reason string    `json:"reason,omitempty"`
}
