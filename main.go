package main

import "dispenser-sync/cmd"

func main() {
	cmd.Execute()
}
