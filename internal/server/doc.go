// Package server 提供 HTTP 服务器生命周期管理。
//
// Manager 封装监听、非阻塞启动、异步错误上报与优雅关闭，
// 被 taskflow serve 命令用于业务 API 与 Prometheus 指标两个端口。
package server
