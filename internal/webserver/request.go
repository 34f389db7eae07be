package webserver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrBadRequest = errors.New("bad request")

var (
	callbackPattern   = regexp.MustCompile(`/?callback=(\w+)&`)
	instrumentPattern = regexp.MustCompile(`&Instrument=([^&]+)&`)
)

// AllInstruments asks for the summary of every instrument.
const AllInstruments = "ALL"

// ParseRequest picks the jsonp callback and the upper-cased instrument name out of a request
// path. Each must appear exactly once.
func ParseRequest(path string) (instrument, callback string, err error) {
	callbacks := callbackPattern.FindAllStringSubmatch(path, -1)
	if len(callbacks) != 1 {
		return "", "", fmt.Errorf("%w: invalid number of callbacks specified: %s", ErrBadRequest, path)
	}
	instruments := instrumentPattern.FindAllStringSubmatch(path, -1)
	if len(instruments) != 1 {
		return "", "", fmt.Errorf("%w: invalid number of instruments specified: %s", ErrBadRequest, path)
	}
	return strings.ToUpper(instruments[0][1]), callbacks[0][1], nil
}
