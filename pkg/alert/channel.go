package alert

import (
	"context"

	"github.com/NeuralTrust/TrustShield/pkg/types"
)

// Channel delivers a security alert to one destination. Implementations
// must respect the context deadline; the dispatcher treats an expired
// context as a failed delivery. Failures are isolated per channel and never
// reach the request path that triggered the alert.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert types.SecurityAlert) error
}
