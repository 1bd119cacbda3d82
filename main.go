// Command tiledeck assembles vector tile source feeds into MBTiles
// archives and inspects the archives it produces.
package main

import "github.com/valpere/tiledeck/cmd"

func main() {
	cmd.Execute()
}
