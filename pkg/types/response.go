package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// SyncStatus is the device's sync summary shown by the UI's offline banner.
type SyncStatus struct {
	Online          bool  `json:"online"`
	PendingCount    int64 `json:"pendingCount"`
	DeadLetterCount int64 `json:"deadLetterCount"`
}
