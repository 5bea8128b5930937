package main

import "hadiscover/cmd/cli"

func main() {
	cli.Execute()
}
