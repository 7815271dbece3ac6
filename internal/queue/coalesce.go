package queue

import "github.com/angelmondragon/tableside-sync/pkg/enums"

// coalesce folds an incoming operation onto an existing entry for the same
// order. keep=false means the entry must be removed: a delete that lands on a
// never-synced create cancels both.
func coalesce(existing, incoming enums.OperationKind) (kind enums.OperationKind, keep bool) {
	switch existing {
	case enums.OperationCreate:
		switch incoming {
		case enums.OperationCreate, enums.OperationUpdate:
			return enums.OperationCreate, true
		case enums.OperationDelete:
			return "", false
		}
	case enums.OperationUpdate:
		switch incoming {
		case enums.OperationCreate, enums.OperationUpdate:
			return enums.OperationUpdate, true
		case enums.OperationDelete:
			return enums.OperationDelete, true
		}
	case enums.OperationDelete:
		switch incoming {
		case enums.OperationCreate, enums.OperationUpdate:
			return enums.OperationCreate, true
		case enums.OperationDelete:
			return enums.OperationDelete, true
		}
	}
	return incoming, true
}
