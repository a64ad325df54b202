package main

import "github.com/hanifrahman/talenthub-payments/cmd"

func main() {
	cmd.Execute()
}
