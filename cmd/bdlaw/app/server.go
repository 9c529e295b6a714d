// Package app provides the bdlaw server application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/spf13/viper"

	"github.com/kart-io/bdlaw/cmd/bdlaw/app/options"
	"github.com/kart-io/bdlaw/pkg/infra/app"
)

const (
	// Name is the name of the application. It also derives the BDLAW_
	// environment variable prefix and the config search paths.
	Name = "bdlaw"

	// commandDesc is the description of the command.
	commandDesc = `Bangladesh law question answering service

Answers questions about the laws of Bangladesh in English or Bangla:
  - Rewrites the question into a search query and act-name filters
  - Retrieves law sections from a vector store (chromem or Milvus)
  - Streams an answer grounded in the retrieved sections
  - Records user feedback and conversation history in MongoDB`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Bangladesh law RAG service"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
		app.WithConfigWatch(reloadLogLevel),
	)
}

// reloadLogLevel 仅热更新日志级别，其余配置需要重启生效。
func reloadLogLevel(v *viper.Viper) error {
	raw := v.GetString("log.level")
	if raw == "" {
		return nil
	}
	level, err := core.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid log.level %q: %w", raw, err)
	}
	logger.Global().SetLevel(level)
	logger.Infow("log level reloaded", "level", raw)
	return nil
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// 信号由 server.Manager 处理
		ctx := context.Background()
		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}
