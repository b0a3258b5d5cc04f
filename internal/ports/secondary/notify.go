package secondary

import "context"

// NotificationGateway hands a notification request to the external delivery system.
// Delivery is best-effort; Send returns once the request has been accepted.
type NotificationGateway interface {
	// Send returns the gateway's attempt ID for the accepted request.
	Send(ctx context.Context, req NotificationRequest) (attemptID string, err error)
}

// NotificationRequest is "notify RecipientID via Method about CaseID at Level".
type NotificationRequest struct {
	NotificationID string
	TenantID       string
	CaseID         string
	Level          int
	RecipientID    string
	Method         string
}
