package types

import "context"

// DeliveryChannel sends one alert to one subscriber over a single method.
// A failed send returns a non-nil error alongside a MethodResult that still
// names the provider tried, so the outcome can be recorded either way.
type DeliveryChannel interface {
	Method() DeliveryMethod
	Deliver(ctx context.Context, alert *Alert, sub *Subscriber) (MethodResult, error)
}
