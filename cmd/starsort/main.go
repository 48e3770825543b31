package main

import "github.com/vietddude/starsort/internal/cli"

func main() {
	cli.Execute()
}
