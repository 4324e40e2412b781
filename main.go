package main

import "github.com/tugboatci/tugboat/cmd"

func main() {
	cmd.Execute()
}
