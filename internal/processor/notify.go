package processor

import (
	"context"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/storage"
)

// Notify delivers a best-effort notification via the configured
// NotificationBus. A missing bus or a publish error never propagates to the
// broker as retryable — notifications are fire-and-forget.
func (d *Deps) Notify(ctx context.Context, p NotifyPayload) (struct{}, error) {
	bus, err := d.Clients.NotificationBus()
	if err != nil {
		return struct{}{}, nil
	}
	if err := bus.Publish(ctx, p.Kind, p.Payload); err != nil {
		return struct{}{}, apperr.WrapAs("notify", apperr.KindDegradedSuccess, err)
	}
	return struct{}{}, nil
}

// notifyRequestError enqueues a request_error notification with the
// title/author/user/message fields spec.md §4.8 and §7 require whenever a
// Request reaches warn or failed.
func (d *Deps) notifyRequestError(ctx context.Context, req *storage.Request, title, author, message string) {
	payload := NotifyPayload{
		Kind: "request_error",
		Payload: map[string]any{
			"title":     title,
			"author":    author,
			"user":      req.UserID,
			"message":   message,
			"requestId": req.ID,
			"status":    string(req.Status),
		},
	}
	if _, err := d.Enqueue(ctx, "notify", req.ID, payload, broker.EnqueueOptions{MaxAttempts: 1}); err != nil {
		return
	}
}
