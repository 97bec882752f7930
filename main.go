package main

import "github.com/ValentinKolb/dbwire/cmd"

func main() {
	cmd.Execute()
}
