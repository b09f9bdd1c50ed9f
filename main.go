package main

import "github.com/chainkv/chainkv/cmd"

func main() {
	cmd.Execute()
}
