package external

import "context"

// SMSGateway sends a single short message. It returns the vendor's message
// id on acceptance; any error means the message was not accepted.
type SMSGateway interface {
	Name() string
	Send(ctx context.Context, to, body, from string) (messageID string, err error)
}
