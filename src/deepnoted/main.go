package main

import (
	"github.com/deepnote/deepnoted/src/deepnoted/app"
	"go.uber.org/fx"
)

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

func main() {
	fx.New(opts()).Run()
}
