// Package autoload configures the global logger from the environment as an
// import side effect.
package autoload

import (
	configx "github.com/eduverse/agent-core/pkg/config"
	logx "github.com/eduverse/agent-core/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
