package main

import (
	"context"
	"dataweb-backend/cmd/dataweb/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
