// Command avrman flashes Intel HEX firmware images onto AVR
// microcontrollers over an STK500v1 bootloader connection.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stephenkingston/avrman/avrerr"
	"github.com/stephenkingston/avrman/boards"
	"github.com/stephenkingston/avrman/discover"
	"github.com/stephenkingston/avrman/programmer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "program":
		if err := runProgram(os.Args[2:]); err != nil {
			reportAndExit(err)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: avrman program --board <name> --firmware <path> [--serial <port>] [--baudrate <int>] [--no-verify]")
}

func runProgram(args []string) error {
	fs := flag.NewFlagSet("program", flag.ExitOnError)
	boardName := fs.String("board", "", "board name (arduino-uno, atmega328p, arduino-nano, arduino-mega)")
	firmwarePath := fs.String("firmware", "", "path to Intel HEX firmware file")
	serialPort := fs.String("serial", "", "serial port (auto-discovered from board's USB ids if omitted)")
	baudrate := fs.Uint("baudrate", 0, "baud rate (board default if omitted)")
	noVerify := fs.Bool("no-verify", false, "skip post-upload verification")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *boardName == "" || *firmwarePath == "" {
		usage()
		return avrerr.NewConfiguration("--board and --firmware are required")
	}

	profile, err := boards.Lookup(*boardName)
	if err != nil {
		return err
	}
	if *baudrate != 0 {
		profile.Baud = uint32(*baudrate)
	}

	port := *serialPort
	if port == "" {
		port, err = discover.Find(profile.USBCandidates)
		if err != nil {
			return err
		}
		log.Printf("discovered port %s for board %s", port, profile.Name)
	}

	prog, err := programmer.New(profile, port)
	if err != nil {
		return err
	}
	defer prog.Close()

	prog.SetVerify(!*noVerify)
	prog.SetProgressBar(true)

	if err := prog.ProgramHexFile(*firmwarePath); err != nil {
		return err
	}

	log.Printf("programmed %s successfully", profile.Name)
	return nil
}

func reportAndExit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
