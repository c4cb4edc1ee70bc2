package main

import "github.com/oshokin/sleepwatch/cmd/sleepwatch-watcher/cmd"

func main() {
	cmd.Execute()
}
