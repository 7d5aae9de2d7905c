// Package agent 负责创建交易代理的端到端编排：先在平台后端注册代理，
// 再提交链上 createAgent 交易，最后把铸造出的股票代币地址回写到平台。
package agent
