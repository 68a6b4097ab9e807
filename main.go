package main

import "github.com/linanwx/leadbridge/cmd"

func main() {
	cmd.Execute()
}
