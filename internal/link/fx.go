package link

import (
	"github.com/smallbiznis/chatlink/internal/link/service"
	"go.uber.org/fx"
)

var Module = fx.Module("link.service",
	fx.Provide(service.NewService),
)
