package contribution

import (
	"github.com/smallparish/offertory/internal/contribution/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("contribution",
	fx.Provide(repository.Provide),
)
