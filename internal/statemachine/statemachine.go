// Package statemachine enforces the Request lifecycle's legal transitions.
// Every processor reads a request, decides what it may do from the current
// status, and writes back through here rather than poking storage directly
// — so a transition that doesn't apply is a no-op instead of a corrupted row.
package statemachine

import (
	"kingoacquire/internal/storage"
)

// allowed maps a status to the set of statuses a processor may move it to.
// Cancellation is reachable from every non-terminal status and is checked
// separately in CanTransition.
var allowed = map[storage.RequestStatus][]storage.RequestStatus{
	storage.StatusAwaitingSearch:   {storage.StatusAwaitingDownload, storage.StatusAwaitingSearch, storage.StatusFailed},
	storage.StatusAwaitingDownload: {storage.StatusDownloading, storage.StatusFailed},
	storage.StatusDownloading:      {storage.StatusDownloading, storage.StatusAwaitingImport, storage.StatusFailed},
	storage.StatusAwaitingImport:   {storage.StatusProcessing, storage.StatusAwaitingImport, storage.StatusWarn, storage.StatusFailed},
	storage.StatusProcessing:       {storage.StatusDownloaded, storage.StatusAwaitingImport, storage.StatusWarn, storage.StatusFailed},
	storage.StatusDownloaded:       {storage.StatusCompleted},
}

// CanTransition reports whether moving req from its current status to next
// is a legal edge. A deleted request can never transition. Cancellation is
// always legal from any non-terminal status.
func CanTransition(req *storage.Request, next storage.RequestStatus) bool {
	if req == nil || req.DeletedAt != nil {
		return false
	}
	if req.Status.Terminal() {
		return false
	}
	if next == storage.StatusCancelled {
		return true
	}
	for _, s := range allowed[req.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// Transitioner applies status changes to a Request through a storage
// repository, refusing (as a no-op, not an error) whenever CanTransition
// disallows the move or the request is soft-deleted.
type Transitioner struct {
	requests *storage.RequestRepository
}

func NewTransitioner(requests *storage.RequestRepository) *Transitioner {
	return &Transitioner{requests: requests}
}

// completesRequest reports whether next ends a request's automated
// lifecycle and so must stamp completed_at (storage's Complete/
// CompleteWithError) rather than a bare status write. Cancelled is handled
// by Cancel, which stamps its own terminal write.
func completesRequest(next storage.RequestStatus) bool {
	switch next {
	case storage.StatusCompleted, storage.StatusWarn, storage.StatusFailed:
		return true
	default:
		return false
	}
}

// Transition moves req to next if legal, returning whether the move was
// actually applied; when it was, req.Status is updated in memory too.
func (t *Transitioner) Transition(req *storage.Request, next storage.RequestStatus) (applied bool, err error) {
	if !CanTransition(req, next) {
		return false, nil
	}
	if completesRequest(next) {
		if err := t.requests.Complete(req.ID, next); err != nil {
			return false, err
		}
	} else if err := t.requests.UpdateStatus(req.ID, next); err != nil {
		return false, err
	}
	req.Status = next
	return true, nil
}

// TransitionWithError moves req to next and records errMsg, refusing as a
// no-op under the same rules as Transition.
func (t *Transitioner) TransitionWithError(req *storage.Request, next storage.RequestStatus, errMsg string) (applied bool, err error) {
	if !CanTransition(req, next) {
		return false, nil
	}
	if completesRequest(next) {
		if err := t.requests.CompleteWithError(req.ID, next, errMsg); err != nil {
			return false, err
		}
	} else if err := t.requests.UpdateStatusWithError(req.ID, next, errMsg); err != nil {
		return false, err
	}
	req.Status = next
	req.ErrorMessage = errMsg
	return true, nil
}

// Cancel force-transitions req to cancelled regardless of current status,
// refusing only if the request is already deleted or already terminal.
func (t *Transitioner) Cancel(req *storage.Request) (applied bool, err error) {
	if req == nil || req.DeletedAt != nil || req.Status.Terminal() {
		return false, nil
	}
	if err := t.requests.Complete(req.ID, storage.StatusCancelled); err != nil {
		return false, err
	}
	req.Status = storage.StatusCancelled
	return true, nil
}

// ClampProgress enforces the monotonic, capped progress invariant: progress
// never decreases, is clamped to 99 while still in an active download
// status, and only reaches 100 once organize begins.
func ClampProgress(current, proposed int, status storage.RequestStatus) int {
	if proposed < current {
		proposed = current
	}
	if proposed > 100 {
		proposed = 100
	}
	if status == storage.StatusDownloading && proposed > 99 {
		proposed = 99
	}
	return proposed
}

// CanWarn reports whether importAttempts has exhausted maxImportRetries,
// the precondition for moving a request to warn instead of retrying.
func CanWarn(importAttempts, maxImportRetries int) bool {
	return importAttempts >= maxImportRetries
}
