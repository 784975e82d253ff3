package main

import "github.com/vietddude/errwatch/internal/cli"

func main() {
	cli.Execute()
}
