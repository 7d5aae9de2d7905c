// Package api 暴露 REST 接口：驱动合约写操作的状态机、查询链上读数据、
// 提交与查询结算任务，并输出 Prometheus 指标。
package api
