package serve

import (
	"fmt"

	cmdUtil "github.com/ValentinKolb/mclock/cmd/util"
	"github.com/ValentinKolb/mclock/lib/persist"
	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the mclock server",
		Long:    `Start the mclock server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is MCLOCK_<flag> (e.g. MCLOCK_SESSION_TIMEOUT=600)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the RPC API will listen (e.g. localhost:8080 for http and tcp, /run/mclock.sock for unix)"))

	key = "rest-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address of the REST lock service if the transport is not http (empty disables it). With the http transport the REST lock service shares the RPC endpoint"))

	key = "lock-file"
	ServeCmd.PersistentFlags().String(key, persist.DefaultPath, cmdUtil.WrapString("The file the lock table is persisted to. An empty value keeps the table in memory only"))

	key = "case-insensitive"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Accept lock types and segment flags in any casing (e.g. 'write', 'LOCKALL')"))

	key = "resource-byte-order"
	ServeCmd.PersistentFlags().String(key, "little", cmdUtil.WrapString("The byte order used to split resource ids into segments (little, big)"))

	key = "session-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Seconds after which the locks of an idle REST session are released (0 disables the expiry)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for reading and writing requests"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the socket write buffer (in KB, 0 keeps the os default, ignored for http)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the socket read buffer (in KB, 0 keeps the os default, ignored for http)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, -1 keeps the os default, only for tcp)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.LockFile = viper.GetString("lock-file")
	serveCmdConfig.CaseInsensitive = viper.GetBool("case-insensitive")
	serveCmdConfig.ByteOrder = viper.GetString("resource-byte-order")
	serveCmdConfig.SessionTimeoutSecond = viper.GetInt64("session-timeout")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.RESTEndpoint = viper.GetString("rest-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint: viper.GetString("endpoint"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	// validate early so a bad flag does not touch the lock file
	if _, err := serveCmdConfig.ResourceByteOrder(); err != nil {
		return err
	}
	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	if serveCmdConfig.SessionTimeoutSecond < 0 {
		return fmt.Errorf("session timeout must not be negative")
	}

	return nil
}

// run starts the mclock server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// parse the transport
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}
