package main

import (
	"log"

	"github.com/t1mm4te/MusicCircles/cmd"
)

func main() {
	cmd.Execute()
	// If Execute() had a problem, Cobra would have called os.Exit.
	// Reaching here means the command completed (or the polling loop returned).
	log.Println("Application command execution finished.")
}
