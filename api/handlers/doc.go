// Package handlers 实现 TaskFlow HTTP API 的请求处理器。
//
// 处理器只做解码、校验与转发，不持有业务规则：启动流水线委托给
// OrderStarter，审批信号转交 coordinator.SignalHub，查询直接读
// pipeline.InstanceStore 与 liveness.Channel。
package handlers
