package main

import "github.com/vietddude/snapcook/internal/cli"

func main() {
	cli.Execute()
}
