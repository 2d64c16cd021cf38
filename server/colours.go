package server

import "fmt"

// ANSI colours for the DEV console request log.
const (
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
	ansiReset   = "\033[0m"
)

var methodColours = map[string]string{
	"GET":     ansiGreen,
	"POST":    ansiBlue,
	"OPTIONS": ansiCyan,
	"DELETE":  ansiYellow,
	"PATCH":   ansiMagenta,
}

func colouredMethod(method string) string {
	colour, ok := methodColours[method]
	if !ok {
		colour = ansiGray
	}
	return fmt.Sprintf("%s %-7s%s", colour, method, ansiReset)
}

func colouredStatus(status int) string {
	colour := ansiGreen
	switch {
	case status >= 500:
		colour = ansiRed
	case status >= 400:
		colour = ansiYellow
	}
	return fmt.Sprintf("%s%d%s", colour, status, ansiReset)
}
