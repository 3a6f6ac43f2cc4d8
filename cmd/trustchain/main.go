package main

import "github.com/sumanth8495/trustchain/cmd/trustchain/cmd"

func main() {
	cmd.Execute()
}
