package enums

import "fmt"

// OperationKind is the mutation a pending queue entry replays against the order service.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

var validOperationKinds = []OperationKind{
	OperationCreate,
	OperationUpdate,
	OperationDelete,
}

func (k OperationKind) String() string {
	return string(k)
}

func (k OperationKind) IsValid() bool {
	for _, candidate := range validOperationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseOperationKind converts raw input into an OperationKind.
func ParseOperationKind(value string) (OperationKind, error) {
	for _, candidate := range validOperationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation kind %q", value)
}
