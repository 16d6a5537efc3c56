package main

import "love-album-backend/cmd"

func main() {
	cmd.Execute()
}
