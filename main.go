package main

import "ctoken-rate-history/internal/cli"

func main() {
	cli.Execute()
}
