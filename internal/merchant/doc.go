// Package merchant implements the interaction layer for the on-chain
// AgentMerchant contract: a stateless contract service, per-operation state
// machines around every write, the approve-then-purchase stablecoin flow,
// cached reads with event driven invalidation, and gas estimation.
package merchant
