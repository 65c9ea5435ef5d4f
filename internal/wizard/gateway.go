// internal/wizard/gateway.go
package wizard

import "context"

// DocumentUpload is one part of the batched multipart upload.
type DocumentUpload struct {
	FileName string
	Content  []byte
}

// ProfileResult is returned by the gateway when the applicant profile is
// persisted.
type ProfileResult struct {
	UserID string
}

// UploadResult flags, per document kind, whether the gateway accepted the
// upload.
type UploadResult struct {
	Confirmed map[DocumentKind]bool
}

// SubmitResult carries the application id assigned by the gateway.
type SubmitResult struct {
	ApplicationID string
}

// Gateway is the machine's port to the external submission gateway. All
// boundary effects of the wizard flow through it; implementations map
// failures onto the standard error taxonomy (gateway rejection, transport
// failure, auth missing).
type Gateway interface {
	RequestOTP(ctx context.Context, channel Channel, destination string) error
	VerifyOTP(ctx context.Context, channel Channel, destination, code string) (token string, err error)
	SaveProfile(ctx context.Context, token string, p Personal) (ProfileResult, error)
	SaveEmployment(ctx context.Context, token, userID string, e Employment) error
	UploadDocuments(ctx context.Context, token, userID string, docs map[DocumentKind]DocumentUpload) (UploadResult, error)
	SubmitLoan(ctx context.Context, token, userID string, d Draft) (SubmitResult, error)
}
