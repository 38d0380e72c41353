package main

import "github.com/codevelop/roomchat-go/internal/cli"

func main() {
	cli.Execute()
}
