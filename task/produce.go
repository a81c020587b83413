package task

import (
	"context"
	"encoding/json"
)

// Produce 以生产者函数实现 Run 契约的辅助器。
//
// fn 在独立 goroutine 中执行，通过 emit 按完成顺序产出超步报告；emit 在
// 消费者就绪前阻塞（惰性序列），ctx 取消时返回 false，生产者应尽快退出。
// fn 返回后报告通道关闭，随后错误通道收到 fn 的返回值（nil 亦发送）并关闭。
func Produce(
	ctx context.Context,
	fn func(ctx context.Context, emit func(ProgressReport) bool) error,
) (<-chan ProgressReport, <-chan error) {
	reports := make(chan ProgressReport)
	errs := make(chan error, 1)

	emit := func(report ProgressReport) bool {
		select {
		case reports <- report:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		err := fn(ctx, emit)
		close(reports)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		errs <- err
		close(errs)
	}()

	return reports, errs
}

// MarshalCheckpoint 序列化适配器检查点，失败时 panic。
// 检查点类型由适配器自身定义，序列化失败属于编程错误。
func MarshalCheckpoint(v any) Checkpoint {
	data, err := json.Marshal(v)
	if err != nil {
		panic("task: unserializable checkpoint: " + err.Error())
	}
	return data
}
