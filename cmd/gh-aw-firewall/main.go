package main

import (
	"context"
	"fmt"
	"os"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/cli"
)

// version is set by GoReleaser at build time, same mechanism the teacher uses.
var version = "dev"

func main() {
	root := cli.NewRootCommand()
	root.Version = version

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
