package main

import "researchkb/internal/cli"

func main() {
	cli.Execute()
}
