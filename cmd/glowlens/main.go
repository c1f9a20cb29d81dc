// Command glowlens serves face and hand analysis over HTTP and analyzes
// still images from the command line.
package main

func main() {
	Execute()
}
