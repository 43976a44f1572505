package reload

import (
	goredis "github.com/redis/go-redis/v9"

	"github.com/fluxgate/fluxgate"
)

// PubSubCapable is implemented by stores that expose a pub/sub surface
// (currently only the Redis backend, via its underlying client).
type PubSubCapable interface {
	PubSubClient() goredis.UniversalClient
}

// Resolve picks the ReloadStrategy for mode (§4.6). AUTO selects pub/sub
// when store implements PubSubCapable, otherwise polling. NONE returns
// nil: callers should skip starting a reload strategy and, per §4.6,
// bypass the cache entirely rather than serve a rule-set that can never
// be invalidated.
func Resolve(mode fluxgate.ReloadMode, store any, channel string) fluxgate.ReloadStrategy {
	switch mode {
	case fluxgate.ReloadNone:
		return nil
	case fluxgate.ReloadPubSub:
		if capable, ok := store.(PubSubCapable); ok {
			return NewPubSub(capable.PubSubClient(), channel, 0)
		}
		return NewPolling(0, 0)
	case fluxgate.ReloadPolling:
		return NewPolling(0, 0)
	default: // AUTO
		if capable, ok := store.(PubSubCapable); ok {
			return NewPubSub(capable.PubSubClient(), channel, 0)
		}
		return NewPolling(0, 0)
	}
}
