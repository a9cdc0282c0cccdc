// Command snapshill runs the snapshot bot.
package main

import "github.com/JakeFAU/snapshill/cmd"

func main() {
	cmd.Execute()
}
