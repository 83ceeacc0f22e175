package main

import "flakereport/cmd"

func main() {
	cmd.Execute()
}
