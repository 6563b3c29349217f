package webhook

import "go.uber.org/fx"

var Module = fx.Module("webhook.notifier",
	fx.Provide(New),
)
