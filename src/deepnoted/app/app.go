package app

import (
	"context"
	"time"

	"github.com/deepnote/deepnoted/src/deepnoted/controller/environment"
	"github.com/deepnote/deepnoted/src/deepnoted/controller/reaper"
	"github.com/deepnote/deepnoted/src/deepnoted/controller/server"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/core"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/fs"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/httpprobe"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/lockfile"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/pending"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/portalloc"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/procinspect"
	"github.com/deepnote/deepnoted/src/deepnoted/repository/servers"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/fx"
)

// Module defines the deepnoted application module.
var Module = fx.Options(
	core.ConfigModule,
	core.LoggerModule,
	fs.Module,
	executor.Module,
	httpprobe.Module,
	procinspect.Module,
	lockfile.Module,
	portalloc.Module,
	environment.Module,
	server.Module,
	reaper.Module,
	fx.Provide(pending.NewStore),
	fx.Provide(servers.New),
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "deepnoted",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	// The server controller and reaper have no downstream consumers inside
	// this process; force their construction.
	fx.Invoke(func(server.Controller) {}),
	fx.Invoke(func(reaper.Controller) {}),
)
