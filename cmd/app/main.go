package main

import "FinCoord/internal/cli"

func main() {
	cli.Execute()
}
