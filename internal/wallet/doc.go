// Package wallet manages the signing identity used for merchant contract
// writes: loading a key, deriving transactors for a chain, and tracking
// connect/disconnect lifecycle plus persisted wallet sessions.
package wallet
