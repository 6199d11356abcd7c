package main

import "github.com/ManuelReschke/SubFox/internal/pkg/cli"

func main() {
	cli.Execute()
}
