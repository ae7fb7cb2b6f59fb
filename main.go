package main

import "github.com/dylan-green/promise-idb/cmd"

func main() {
	cmd.Execute()
}
