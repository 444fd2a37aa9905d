package main

import "screenrelay/agent"

func main() {
	agent.Main()
}
