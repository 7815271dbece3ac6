package enums

type DeadLetterReason string

const (
	DeadLetterReasonRejected  DeadLetterReason = "rejected"
	DeadLetterReasonMalformed DeadLetterReason = "malformed"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterReasonRejected,
	DeadLetterReasonMalformed,
}

func (r DeadLetterReason) IsValid() bool {
	for _, candidate := range validDeadLetterReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
