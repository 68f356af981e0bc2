package main

import "github.com/ValentinKolb/mclock/cmd"

func main() {
	cmd.Execute()
}
