package main

import "screenrelay/server"

func main() {
	server.Main()
}
