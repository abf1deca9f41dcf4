package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages on the specified topic pattern.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "FamilyB/+/heartbeat" matches any device's heartbeat
//   - # (multi-level): "FamilyB/#" matches all family-B traffic
//
// Dispatch is done locally (see routeMessage): every inbound message is
// re-matched against all registered patterns, so overlapping subscriptions
// (e.g. "FamilyB/#" and "FamilyB/+/heartbeat") both receive a message that
// matches both. The handler is invoked in its own goroutine per message and
// should not block for extended periods.
//
// Subscribing while disconnected is not an error: the
// pattern is tracked and will be subscribed for real once the connection is
// (re)established by restoreSubscriptions. A warning is logged so the
// caller's intent is visible in the logs even though the call succeeds.
func (c *Client) Subscribe(pattern string, qos byte, handler MessageHandler) error {
	if pattern == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	c.subMu.Lock()
	c.subscriptions[pattern] = subscription{
		pattern: pattern,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	if !c.IsConnected() {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("subscribing while disconnected, deferred until reconnect", "pattern", pattern)
		}
		return nil
	}

	token := c.client.Subscribe(pattern, qos, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages matching
// the given pattern.
//
// After unsubscribing, the handler will no longer be invoked for new
// messages matching this pattern. Any messages already dispatched to a
// handler goroutine may still complete.
func (c *Client) Unsubscribe(pattern string) error {
	if pattern == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.subscriptions, pattern)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Unsubscribe(pattern)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of registered subscription patterns.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether a subscription is registered for the
// given pattern.
//
// Note: this checks only the exact pattern string, not wildcard overlap.
func (c *Client) HasSubscription(pattern string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[pattern]
	return exists
}
