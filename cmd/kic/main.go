// Command kic serves and queries the Kepler Input Catalog.
package main

import "github.com/kepler-soc/kic/internal/cli"

func main() {
	cli.Execute()
}
