package transport

import (
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"sort"
	"strings"
)

// NewCurlObserver returns a request observer that logs every request as an
// equivalent curl command at debug level. Credentials are masked.
func NewCurlObserver(log logger.ILogger, config common.ConnectionConfig, codec common.BodyCodec) common.RequestObserver {
	return func(host common.HostDescription, req *common.Request) {
		log.Debugf("%s", CurlCommand(host, config, req, codec))
	}
}

// CurlCommand renders a request as curl command line
func CurlCommand(host common.HostDescription, config common.ConnectionConfig, req *common.Request, codec common.BodyCodec) string {
	var sb strings.Builder

	sb.WriteString("curl -X ")
	sb.WriteString(req.Method.String())
	if config.UseSSL {
		sb.WriteString(" --insecure")
	}
	if config.User != "" {
		sb.WriteString(" --basic -u ")
		sb.WriteString(config.User)
		sb.WriteString(":****")
	}
	if host.Proxy != nil {
		fmt.Fprintf(&sb, " --proxy %s:%d", host.Proxy.Host, host.Proxy.Port)
		if host.Proxy.HasAuth() {
			fmt.Fprintf(&sb, " --proxy-user %s:****", host.Proxy.User)
		}
	}

	keys := make([]string, 0, len(req.HeaderParams))
	for k := range req.HeaderParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " -H '%s:%s'", k, req.HeaderParams[k])
	}

	if !req.Body.IsEmpty() {
		if text, err := req.Body.Text(codec); err == nil && text != "" {
			fmt.Fprintf(&sb, " -d '%s'", text)
		}
	}

	sb.WriteString(" '")
	sb.WriteString(req.BuildURL(config.BaseURL(host)))
	sb.WriteString("'")
	return sb.String()
}
