/*
Package transport re-publishes analyzed features to external consumers:
- WebSocket broadcast of FeatureSet JSON for browser visualizers
- A logging transport for debugging without a consumer attached

The UDP path lives in the udp subpackage.
*/
package transport

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}
