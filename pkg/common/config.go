package common

import (
	"net/http"
	"time"
)

// Version is the version of this program :|
const Version = "1.0.0"

// DesktopUserAgent is sent on requests which hit reddit pages or its CDNs.
// Reddit blocks the default Go agent, so we pretend to be a desktop browser.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// GlobalHttpClient is a http client which all request must be done through it
var GlobalHttpClient = http.Client{
	Timeout: time.Second * 10,
}
