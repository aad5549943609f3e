package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/julianstephens/flux/internal/server"
)

type ServeCmd struct {
	Addr string `help:"Listen address (defaults to server.addr in the config file)."`
}

func (c *ServeCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}

	addr := c.Addr
	if addr == "" {
		addr = ctx.Config.Server.Addr
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.New(addr, svc.Runtime, svc.Dispatcher, svc.Reporter, server.WithMetrics(svc.Metrics))
	ctx.printf("Serving flux on http://%s\n", addr)
	return s.Run(runCtx)
}
