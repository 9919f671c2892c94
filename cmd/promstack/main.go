// promstack generates Prometheus monitoring stack bundles for Kubernetes.
package main

import (
	"os"

	"github.com/hupe1980/promstack/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
