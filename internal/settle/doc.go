// Package settle 实现卖出请求的异步结算流水线：提交结算任务、
// 通过消息队列分发给工作协程，并由执行器在链上调用结算交易。
// 存储支持内存与 MySQL 两种实现，队列支持内存、Redis 与 RabbitMQ。
package settle
