package application

import (
	"context"

	"shopease/internal/pkg/logger"
)

// compensationStack 收集已完成步骤的回滚动作，失败时按 LIFO 执行。
// 补偿自身失败只记录为运维告警（库存可能泄漏），不重试、不向调用方传播，
// 触发补偿的原始错误始终是调用方看到的那个。
type compensationStack struct {
	steps []compensationStep
}

type compensationStep struct {
	name string
	run  func(context.Context) error
}

func (c *compensationStack) push(name string, run func(context.Context) error) {
	c.steps = append(c.steps, compensationStep{name: name, run: run})
}

func (c *compensationStack) empty() bool {
	return len(c.steps) == 0
}

func (c *compensationStack) trigger(ctx context.Context) {
	if len(c.steps) == 0 {
		return
	}
	compensationTotal.Inc()
	logger.Ctx(ctx).Warn().Int("steps", len(c.steps)).Msg("Order placement failed, running compensation")

	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.run(ctx); err != nil {
			compensationFailuresTotal.Inc()
			logger.Ctx(ctx).Error().
				Err(err).
				Str("step", step.name).
				Msg("COMPENSATION FAILED: possible stock leak, operator intervention required")
			continue
		}
		logger.Ctx(ctx).Info().Str("step", step.name).Msg("Compensation step completed")
	}
}
