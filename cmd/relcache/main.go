package main

import (
	"github.com/asad/relcache/internal/cli"
)

func main() {
	cli.Execute()
}
