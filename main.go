package main

import "github.com/ValentinKolb/sift/cmd"

func main() {
	cmd.Execute()
}
