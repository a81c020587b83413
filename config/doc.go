// Package config 提供 TaskFlow 的配置管理功能。
//
// 支持从 YAML 文件和环境变量加载配置，
// 配置覆盖优先级为 默认值 → 文件 → 环境变量。
// 执行器的心跳与重试参数在进程启动时冻结，
// 运行期不做热更新，避免改变在途任务的失活判定窗口。
package config
