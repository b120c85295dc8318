package main

import "github.com/mcoot/dicefunnel/internal/cli"

func main() {
	cli.Execute()
}
