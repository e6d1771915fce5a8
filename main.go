// ./main.go
package main

import (
	"webpilot/cmd"
)

func main() {
	cmd.Execute()
}
