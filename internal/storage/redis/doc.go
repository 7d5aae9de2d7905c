// Package redis provides Redis backed persistence for the merchant runtime:
// wallet session storage with TTL expiry and cached read state shared across
// gateway instances.
package redis
