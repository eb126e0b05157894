package transport

import "context"

// Digest is a rendered digest ready for delivery.
type Digest struct {
	ToEmail string
	ToName  string
	Subject string
	Content string // plain-text digest body from the summarizer
}

// Sender delivers digests. A nil error means the transport accepted the
// message; acceptance counts as delivery for watermark purposes.
type Sender interface {
	Send(ctx context.Context, d Digest) error
}
