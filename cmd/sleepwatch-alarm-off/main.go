package main

import "github.com/oshokin/sleepwatch/cmd/sleepwatch-alarm-off/cmd"

func main() {
	cmd.Execute()
}
