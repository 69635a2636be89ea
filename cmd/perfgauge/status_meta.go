package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/torosent/perfgauge/internal/metrics"
)

// statusOK labels successful calls of protocols without a status line.
const statusOK = "OK"

// httpStatus formats a response code the way it appears on the status line.
func httpStatus(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return strconv.Itoa(code)
	}
	return fmt.Sprintf("%d %s", code, text)
}

// httpStatusCode parses the leading code back out of an httpStatus label.
func httpStatusCode(status string) (int, bool) {
	trimmed := strings.TrimSpace(status)
	if len(trimmed) < 3 {
		return 0, false
	}
	code, err := strconv.Atoi(trimmed[:3])
	if err != nil || code < 100 || code > 599 {
		return 0, false
	}
	if len(trimmed) > 3 && trimmed[3] != ' ' {
		return 0, false
	}
	return code, true
}

// fallbackStatus labels a transport failure that carried no protocol status.
func fallbackStatus(err error) string {
	if err == nil {
		return ""
	}
	status := metrics.ErrorStatus(err)
	if strings.TrimSpace(status) == "" {
		return "Unknown error"
	}
	return status
}
