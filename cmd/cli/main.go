package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/coursecert/cmd/cli/internal/commands"
	"github.com/wolfeidau/coursecert/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Render       commands.RenderCmd       `cmd:"" help:"Render a certificate PDF locally"`
		Verify       commands.VerifyCmd       `cmd:"" help:"Verify a certificate on a server"`
		Register     commands.RegisterCmd     `cmd:"" help:"Register certificate metadata"`
		List         commands.ListCmd         `cmd:"" help:"List your certificates"`
		EnsureBucket commands.EnsureBucketCmd `cmd:"" help:"Create the certificate bucket on the server"`
		Token        commands.TokenCmd        `cmd:"" help:"Generate a bearer token"`
		Debug        bool                     `help:"Enable debug mode."`
		Version      kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("coursecert"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	logger.Setup(cli.Debug)
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
