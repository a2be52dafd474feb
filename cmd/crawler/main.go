// Command crawler records every page of one domain reachable from a seed URL.
package main

import (
	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}
