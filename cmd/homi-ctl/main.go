package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"homi/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: homi-ctl [--socket path] say <words...> | ping")
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", "/tmp/homi.sock", "Control socket of the homi daemon")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case ipc.CmdSay:
		text := strings.Join(args[1:], " ")
		if strings.TrimSpace(text) == "" {
			usage()
			os.Exit(2)
		}
		err = ipc.Say(*socket, text)
	case ipc.CmdPing:
		err = ipc.SendCommand(*socket, ipc.ControlMessage{Cmd: ipc.CmdPing})
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Println("homi not running:", err)
		os.Exit(1)
	}
}
