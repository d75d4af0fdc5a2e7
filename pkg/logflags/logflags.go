// Package logflags configures the loggers used by the rest of the
// debugger, one per layer.
package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var proctl = false
var terminal = false
var symbols = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// ProctlLogger returns a logger for the process-control layer.
func ProctlLogger() *logrus.Entry {
	return makeLogger(proctl, logrus.Fields{"layer": "proctl"})
}

// TerminalLogger returns a logger for the terminal layer.
func TerminalLogger() *logrus.Entry {
	return makeLogger(terminal, logrus.Fields{"layer": "terminal"})
}

// SymbolsLogger returns a logger for the symbol resolution layer.
func SymbolsLogger() *logrus.Entry {
	return makeLogger(symbols, logrus.Fields{"layer": "symbols"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logger flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "proctl"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "proctl":
			proctl = true
		case "terminal":
			terminal = true
		case "symbols":
			symbols = true
		default:
			return errors.New("invalid log layer: " + logcmd)
		}
	}
	return nil
}
