package main

import "github.com/tendant/sealed-log/internal/cli"

func main() {
	cli.Execute()
}
