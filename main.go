package main

import (
	"fmt"
	"os"

	"github.com/VanDung-dev/root2avro/root2avro-engine/api"
)

// Name of the project.
const Name = "root2avro"

func main() {
	fmt.Printf("%s v%s\n", Name, api.Version)
	fmt.Println("Converts ROOT trees into Avro records")
	fmt.Println("Commands: cmd/root2avro (files), cmd/convert-server (TCP, gRPC, ZeroMQ), tools/loadgen")
	os.Exit(0)
}
