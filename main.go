package main

import "github.com/devicelab-dev/loancalc-runner/pkg/cli"

func main() {
	cli.Execute()
}
