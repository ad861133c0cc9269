package main

import "charrag/internal/cli"

func main() {
	cli.Execute()
}
