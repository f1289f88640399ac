package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/version"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("markbind"),
		kong.Description("Generate and preview MarkBind sites."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	if err := ctx.Run(&cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
