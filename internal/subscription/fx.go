package subscription

import (
	"github.com/smallbiznis/chatlink/internal/subscription/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.Provide),
)
