// Package fulfillment 提供订单履行流水线的具体任务适配器：
// 支付校验、库存预留、逐件打包（支持检查点恢复与幂等外部资源获取）、
// 最终配送，以及组装完整流水线定义的辅助函数。
//
// 打包适配器是条目级检查点模式的示范：第一个动作先获取外部追踪号并
// 立即以哨兵下标 -1 上报检查点，保证即使在第一件完成前崩溃，重试也
// 不会重复申请追踪号。该模式适用于任何首个动作分配外部资源的任务。
package fulfillment
