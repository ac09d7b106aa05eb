package main

import "github.com/KEYinternational/flytrap/internal/cmd"

func main() {
	cmd.Main()
}
