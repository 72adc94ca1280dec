package main

import "github.com/felixgeelhaar/michael/adapter/cli"

func main() {
	cli.Execute()
}
