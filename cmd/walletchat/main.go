package main

import "github.com/nfrund/walletchat/cmd/walletchat/cmd"

func main() {
	cmd.Execute()
}
