// Package task 定义可恢复任务的适配器契约与通用执行器。
//
// Adapter 将一个可恢复的工作单元与执行协议解耦：适配器只负责业务推进与
// 检查点语义，Runner 负责所有活性协议相关的事务 —— 恢复检查点、后台心跳、
// 每个超步完成后的即时上报、以及所有退出路径上的资源回收。
//
// 双通道上报机制：纯周期性心跳会让崩溃后的重放窗口扩大到整个超步；
// 纯按超步上报又会让超长超步期间的失活检测窗口无界。两者叠加同时约束
// 重放窗口与检测窗口。
package task
