// The main package for the tweet-harvester executable.
package main

import (
	"os"

	"github.com/JakeFAU/tweet-harvester/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
