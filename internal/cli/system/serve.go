package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/api"
	"github.com/julianstephens/tipje/internal/cli"
)

type ServeCmd struct {
	Addr      string `help:"Address to listen on (defaults to server.addr from the config)."`
	NoMetrics bool   `help:"Disable the /metrics endpoint."`
}

func (c *ServeCmd) Run(app *cli.Context, ctx context.Context) error {
	addr := c.Addr
	if addr == "" {
		addr = app.Config.Server.Addr
	}

	srv := api.NewServer(app.Family, app.Catalog)
	if app.Config.Server.Metrics && !c.NoMetrics {
		srv.EnableMetrics(app.Metrics)
	}

	fmt.Printf("Serving the tipje API on http://%s (storage: %s)\n", addr, app.Store.Location())
	return srv.Serve(ctx, addr)
}
