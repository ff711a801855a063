package notify

import (
	"context"
	"log"
	"time"

	"clavionx/backend/internal/devotp"
	"clavionx/backend/internal/platform/clock"
)

// DevNotifier stores codes in a devotp.Store instead of sending them. Only for local development;
// config.Load rejects dev OTP mode in production.
type DevNotifier struct {
	Store devotp.Store
	Clock clock.Clock
	TTL   time.Duration
}

// Send records the code for destination and reports success on both channels.
func (d *DevNotifier) Send(ctx context.Context, channel Channel, destination string, msg Message) error {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	d.Store.Put(ctx, destination, msg.Code, clock.OrSystem(d.Clock).Now().Add(ttl))
	log.Printf("notify: dev mode, %s code for %s held for GET /dev/otp", channel, destination)
	return nil
}
