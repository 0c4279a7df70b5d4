// Command vdp-host runs one end of a channel link over a serial port.
//
// Usage:
//
//	vdp-host [flags] <command>
//
// Commands:
//
//	listen   - mirror channels announced by the peer and print their updates
//	stream   - announce a host status channel and stream it periodically
//	version  - show protocol version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
