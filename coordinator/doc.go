// Package coordinator 实现 worker 侧的任务派发协议：带重试的持久派发、
// 失活看门狗、以及带超时的带外信号（人工审批）投递。
//
// 独占派发由外部协调层保证（同一任务实例同一时刻至多一个 Attempt 在
// 执行），本包不做跨 Attempt 的互斥，只负责单个 Attempt 内部的监督：
// 前台执行与失活看门狗用 errgroup 监督，任一方退出即取消另一方。
package coordinator
