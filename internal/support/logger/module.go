package logger

import "go.uber.org/fx"

// Module is an fx module that routes container logs through the package logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
