package main

import "github.com/mvp-joe/ccindex/internal/cli"

func main() {
	cli.Execute()
}
