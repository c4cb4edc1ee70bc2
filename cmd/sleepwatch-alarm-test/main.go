package main

import "github.com/oshokin/sleepwatch/cmd/sleepwatch-alarm-test/cmd"

func main() {
	cmd.Execute()
}
