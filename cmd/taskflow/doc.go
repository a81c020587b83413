// taskflow 是可恢复任务执行协议的命令行入口。
//
// serve 子命令启动 worker 进程：任务注册表、活性通道、派发协调器、
// 信号枢纽与流水线 API 运行在同一进程内，Prometheus 指标单独监听。
// run / approve / reject / inspect 子命令是纯 HTTP 客户端，
// 通过 API 启动订单履行流水线、投递审批决策、查看归档实例
// 与任务活性轨迹。
//
// worker 进程被杀后重启，重新提交同一订单会派生出相同的任务实例
// 标识，打包阶段从活性通道里最近的检查点继续，不重复已完成的件。
package main
