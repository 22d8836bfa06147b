package main

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/dumacp/go-logs/pkg/logs"
)

const (
	pathenvfile = "/usr/include/serial-dev"
)

var snclean = regexp.MustCompile(`[^a-zA-Z0-9\-_\.]+`)

// Hostname returns id when set, else the device serial number from
// pathenvfile, else the OS hostname.
func Hostname(id string) string {
	if len(id) > 0 {
		return id
	}
	if sn := serial(pathenvfile); len(sn) > 0 {
		return sn
	}
	hostname, err := os.Hostname()
	if err != nil {
		logs.LogError.Fatalf("Error: there is not hostname! %s", err)
	}
	return hostname
}

func serial(path string) string {
	fileenv, err := os.Open(path)
	if err != nil {
		logs.LogWarn.Printf("error: reading file env, %s", err)
		return ""
	}
	defer fileenv.Close()
	scanner := bufio.NewScanner(fileenv)
	for scanner.Scan() {
		split := strings.SplitN(scanner.Text(), "=", 2)
		if len(split) > 1 && split[0] == "sn-dev" {
			return snclean.ReplaceAllString(split[1], "")
		}
	}
	return ""
}
