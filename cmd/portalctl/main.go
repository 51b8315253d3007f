package main

import "portalsync-backend/cmd/portalctl/commands"

func main() {
	commands.Execute()
}
