package channel

import (
	"github.com/smallbiznis/chatlink/internal/channel/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("channel",
	fx.Provide(repository.Provide),
)
