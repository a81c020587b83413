// Package analysis 提供多步分析类任务适配器：
// ResearchAdapter 按固定节点序列（计划 → 检索 → 分析 → 报告）推进，
// 每个节点完成即上报携带中间产物的检查点，崩溃后从最后完成的节点恢复；
// SleepingAdapter 不支持检查点，重派后总是从头执行，用于演示省略该
// 模式的代价。
//
// 文本生成通过 TextModel 接口注入，语言模型本身不在本包职责范围内。
package analysis
