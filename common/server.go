package common

import (
	"fmt"
	"os"
	"strconv"
)

const defaultServerPort = 8876

func GetServerPort() int {
	port := os.Getenv("PARLEY_SERVER_PORT")
	if port == "" {
		return defaultServerPort
	}

	intPort, err := strconv.Atoi(port)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse parley api server port: %s", port))
	}
	return intPort
}
