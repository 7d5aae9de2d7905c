// Package web3 houses blockchain connectivity utilities: RPC clients, the
// backend abstraction consumed by contract bindings, event subscription
// helpers, and multi-chain configuration. It lets the merchant layer talk to
// any configured EVM network through one interface, including websocket log
// subscriptions used for cache invalidation.
package web3
