// Command plotctl exercises contiguous plot selection from a terminal: it replays toggles,
// renders selection maps and manages the sqlite parcel store the server reads.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
