package main

import "github.com/oshokin/gpio-monitor/cmd/gpio-monitor/cmd"

func main() {
	cmd.Execute()
}
