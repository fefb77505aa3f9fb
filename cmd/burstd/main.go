// Command burstd answers every HTTP request with the same fixed response,
// as fast as the machine allows. It exists for capacity testing: load
// balancers, proxies and benchmark rigs point at it to measure everything
// except the application.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	// Size GOMAXPROCS and the GC memory limit from the container cgroup.
	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/searchktools/burst-server/app"
	"github.com/searchktools/burst-server/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "burstd:", err)
		os.Exit(2)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "burstd:", err)
		os.Exit(1)
	}

	if err := a.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "burstd:", err)
		os.Exit(1)
	}
}
