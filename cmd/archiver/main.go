package main

import (
	_ "net/http/pprof"
	"os"

	_ "github.com/distribution/archiver/auth/basic"
	_ "github.com/distribution/archiver/cluster/inmemory"
	_ "github.com/distribution/archiver/cluster/ipfscluster"
	"github.com/distribution/archiver/server"
	_ "github.com/distribution/archiver/store/inmemory"
	_ "github.com/distribution/archiver/store/kubo"
)

func main() {
	if err := server.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
