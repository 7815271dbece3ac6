package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-sync/api/responses"
	"github.com/angelmondragon/tableside-sync/api/validators"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/types"
)

// SyncStatus reports connectivity and queue depth.
func SyncStatus(conn Connectivity, q QueueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := q.Count(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dead, err := q.CountDeadLetters(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.SyncStatus{
			Online:          conn.Online(),
			PendingCount:    pending,
			DeadLetterCount: dead,
		})
	}
}

// QueueList returns the pending operations in processing order.
func QueueList(q QueueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := q.PeekAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

// DeadLetters returns the most recent dead-lettered operations.
func DeadLetters(q QueueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		letters, err := q.ListDeadLetters(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, letters)
	}
}

// SyncNow runs a reconciliation pass and returns its summary. Per-entry
// failures are reported in the result rather than as an error status.
func SyncNow(rec Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := rec.Reconcile(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
