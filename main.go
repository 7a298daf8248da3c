package main

import "github.com/ValentinKolb/dQRY/cmd"

func main() {
	cmd.Execute()
}
