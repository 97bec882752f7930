package util

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/client"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/pool"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
	"strings"
	"time"
)

var Logger = logger.GetLogger("cmd")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupConnectionFlags adds the connection flags to a command
func SetupConnectionFlags(cmd *cobra.Command) {
	key := "endpoints"
	cmd.PersistentFlags().String(key, "localhost:8529", WrapString("The address of the server. Multiple endpoints can be specified as a comma-separated list, requests fail over to the next endpoint"))

	key = "protocol"
	cmd.PersistentFlags().String(key, "http-json", WrapString("The wire protocol (http-json, http-vpack, vst)"))

	key = "database"
	cmd.PersistentFlags().String(key, "", WrapString("The database to use (empty for the default database)"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 10*time.Second, WrapString("Bounds connection establishment and every request (0 disables the timeout)"))

	key = "ttl"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Maximum lifetime of a socket (0 for no limit)"))

	key = "user"
	cmd.PersistentFlags().String(key, "", WrapString("User for the basic authentication"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("Password for the basic authentication"))

	key = "jwt"
	cmd.PersistentFlags().String(key, "", WrapString("Token for the jwt authentication (takes precedence over user and password)"))

	key = "ssl"
	cmd.PersistentFlags().Bool(key, false, WrapString("Whether to use TLS"))

	key = "ca-file"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with the certificates to trust (defaults to the system roots)"))

	key = "insecure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Skip the verification of the server certificate"))

	key = "proxy"
	cmd.PersistentFlags().String(key, "", WrapString("Forward HTTP proxy (host:port), only for the http protocols"))

	key = "proxy-user"
	cmd.PersistentFlags().String(key, "", WrapString("User for the proxy authentication"))

	key = "proxy-password"
	cmd.PersistentFlags().String(key, "", WrapString("Password for the proxy authentication"))

	key = "conn-per-host"
	cmd.PersistentFlags().Int(key, common.DefaultConnectionsPerHost, WrapString("Simultaneous connections per endpoint"))

	key = "chunk-size"
	cmd.PersistentFlags().Int(key, common.DefaultChunkSize, WrapString("The maximum size of a VelocyStream chunk (only for vst)"))

	key = "cookies"
	cmd.PersistentFlags().String(key, common.CookiePolicyIgnore, WrapString("Cookie policy, anything but ignoreCookies stores cookies in memory (only for http)"))

	key = "retry-delay"
	cmd.PersistentFlags().Duration(key, 100*time.Millisecond, WrapString("Base delay between failover attempts"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))

	key = "curl"
	cmd.PersistentFlags().Bool(key, false, WrapString("Log every request as curl command (needs log-level debug)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the request metrics in Prometheus format after the command"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dbwire")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// InitLogging configures the loggers with the configured level
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"), os.Stderr)
}

// GetConnectionConfig reads the connection configuration from viper
func GetConnectionConfig() (common.ConnectionConfig, error) {
	config := common.DefaultConnectionConfig()

	protocol, err := common.ParseProtocol(viper.GetString("protocol"))
	if err != nil {
		return config, err
	}
	config.Protocol = protocol
	config.Timeout = viper.GetDuration("timeout")
	config.TTL = viper.GetDuration("ttl")
	config.User = viper.GetString("user")
	config.Password = viper.GetString("password")
	config.UseSSL = viper.GetBool("ssl")
	config.ConnectionsPerHost = viper.GetInt("conn-per-host")
	config.ChunkSize = viper.GetInt("chunk-size")
	config.CookiePolicy = viper.GetString("cookies")

	if config.UseSSL {
		tlsConfig, err := loadTLSConfig(viper.GetString("ca-file"), viper.GetBool("insecure"))
		if err != nil {
			return config, err
		}
		config.TLSConfig = tlsConfig
	}

	if viper.GetBool("curl") {
		config.Observer = transport.NewCurlObserver(Logger, config, serializer.DefaultCodec())
	}

	return config, config.Validate()
}

// GetAuthentication returns the configured credentials
func GetAuthentication(config common.ConnectionConfig) common.Authentication {
	if token := viper.GetString("jwt"); token != "" {
		return common.JWTAuthentication(token)
	}
	return common.AuthenticationFromConfig(config)
}

// GetHosts parses the configured endpoints and attaches the proxy
func GetHosts() ([]common.HostDescription, error) {
	var proxy *common.ProxyDescription
	if p := viper.GetString("proxy"); p != "" {
		proxyHost, err := common.ParseHostDescription(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
		proxy = &common.ProxyDescription{
			Host:     proxyHost.Host,
			Port:     proxyHost.Port,
			User:     viper.GetString("proxy-user"),
			Password: viper.GetString("proxy-password"),
		}
	}

	var hosts []common.HostDescription
	for _, endpoint := range strings.Split(viper.GetString("endpoints"), ",") {
		if strings.TrimSpace(endpoint) == "" {
			continue
		}
		host, err := common.ParseHostDescription(endpoint)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host.WithProxy(proxy))
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}
	return hosts, nil
}

// Session bundles the client of a command with the pool it uses
type Session struct {
	Config common.ConnectionConfig
	Client *client.Client
	Pool   *pool.HostPool
}

// NewSession creates a pool and a failover client from the configuration
func NewSession() (*Session, error) {
	config, err := GetConnectionConfig()
	if err != nil {
		return nil, err
	}
	hosts, err := GetHosts()
	if err != nil {
		return nil, err
	}

	factory, err := pool.NewConnectionFactory(config)
	if err != nil {
		return nil, err
	}
	p := pool.NewHostPool(factory, GetAuthentication(config))

	executor, err := client.NewFailoverExecutor(p, hosts, client.WithRetryDelay(viper.GetDuration("retry-delay")))
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	Logger.Debugf("Configuration:\n%s", config.String())
	return &Session{
		Config: config,
		Client: client.NewClient(executor, viper.GetString("database"), config.Protocol),
		Pool:   p,
	}, nil
}

// Close closes the pool and prints the metrics if requested
func (s *Session) Close(w io.Writer) error {
	err := s.Pool.Close()
	if viper.GetBool("metrics") {
		fmt.Fprintln(w)
		transport.WriteMetrics(w)
	}
	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// loadTLSConfig creates the TLS configuration trusting the certificates of caFile
func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure,
	}
	if caFile == "" {
		return config, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ca file: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	config.RootCAs = roots
	return config, nil
}

// Setup binds the flags of cmd, configures logging and creates a session
func Setup(cmd *cobra.Command) (*Session, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	if err := InitLogging(); err != nil {
		return nil, err
	}
	return NewSession()
}
