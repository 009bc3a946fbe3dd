package main

import "github.com/tamgam-edu/diya-core/internal/cli"

var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
