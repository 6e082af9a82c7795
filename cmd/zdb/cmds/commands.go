package cmds

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zdbg/zdb/pkg/config"
	"github.com/zdbg/zdb/pkg/host"
	"github.com/zdbg/zdb/pkg/host/gdbserial"
	"github.com/zdbg/zdb/pkg/host/memhost"
	"github.com/zdbg/zdb/pkg/logflags"
	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/symbols"
	"github.com/zdbg/zdb/pkg/terminal"
	"github.com/zdbg/zdb/pkg/version"
	"github.com/zdbg/zdb/service"
	"github.com/zdbg/zdb/service/zdb"
)

const (
	defaultListen     = "127.0.0.1:7340"
	defaultGdbAddress = "127.0.0.1:9123"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string

	// addr is the server listen address.
	addr string
	// backend selects the machine breakpoints are set on.
	backend string
	// gdbAddr is the address of the gdb stub used by the gdb backend.
	gdbAddr string
	// gdbPCRegnum is the register number of the program counter.
	gdbPCRegnum int
	// gdbAddr64 sends sign extended 64 bit addresses to the stub.
	gdbAddr64 bool
	// tablesFile overrides the overlay name tables.
	tablesFile string
	// bufferSize is the largest request accepted from a client.
	bufferSize int

	// mapFile is the linker map file used by the terminal.
	mapFile string
	// initFile is the path to initialization file.
	initFile string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const zdbCommandLongDesc = `zdb is a breakpoint debugger for N64 games.

The zdb server sets breakpoints on the game running in an emulator, following
functions that live in overlays as the game loads, moves and unloads them.
A client, like the one started by "zdb connect", tells the server which
functions to break on.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	var err error
	conf, err = config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// Main zdb root command.
	rootCommand = &cobra.Command{
		Use:   "zdb",
		Short: "zdb is an overlay aware breakpoint debugger for N64 games.",
		Long:  zdbCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable server logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'zdb help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'zdb help log').")

	// 'serve' subcommand.
	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Starts the breakpoint server.",
		Long: `Starts the breakpoint server.

The server accepts one client at a time. When the client disconnects every
breakpoint it created is deleted and the server waits for the next client.
The server stops on SIGINT or SIGTERM, or when the connection to the gdb stub
is lost.`,
		Run: serveCmd,
	}
	addServeFlags(serveCommand.Flags(), conf)
	rootCommand.AddCommand(serveCommand)

	// 'connect' subcommand.
	connectCommand := &cobra.Command{
		Use:   "connect [addr]",
		Short: "Connect to a breakpoint server.",
		Long: `Connect to a running breakpoint server and start the interactive terminal.

If addr is omitted the listen address from the configuration file is used.`,
		Args: cobra.MaximumNArgs(1),
		Run:  connectCmd,
	}
	connectCommand.Flags().StringVar(&mapFile, "map", conf.MapFile, "Linker map file used to find functions.")
	connectCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.AddCommand(connectCommand)

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zdb Debugger\n%s\n", version.ZdbVersion)
			if versionVerbose {
				fmt.Print(version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "backend",
		Short: "Help about the --backend flag.",
		Long: `The --backend flag specifies the machine breakpoints are set on, possible
values are:

	sim		Simulated memory, for trying out clients without an emulator.
	gdb		The gdb stub of an emulator, see --gdb-addr.

`})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	server		Log client connections and requests
	wire		Log request framing
	breakpoints	Log breakpoint and overlay watch changes
	host		Log traps armed on the target machine
	gdbwire		Log connection to the gdb stub
	config		Log configuration and overlay table loading

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
This option will also redirect the "server listening at" message.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// addServeFlags adds the flags of the serve command, their defaults come
// from the configuration file.
func addServeFlags(fs *pflag.FlagSet, conf *config.Config) {
	fs.StringVarP(&addr, "listen", "l", orDefault(conf.Listen, defaultListen), "Server listen address.")
	fs.StringVar(&backend, "backend", orDefault(conf.Backend, "sim"), `Backend selection (see 'zdb help backend').`)
	fs.StringVar(&gdbAddr, "gdb-addr", orDefault(conf.GdbAddress, defaultGdbAddress), "Address of the emulator's gdb stub.")
	pcRegnum := conf.GdbPCRegnum
	if pcRegnum == 0 {
		pcRegnum = gdbserial.DefaultPCRegnum
	}
	fs.IntVar(&gdbPCRegnum, "gdb-pc-regnum", pcRegnum, "Register number of the program counter in the stub's register layout.")
	fs.BoolVar(&gdbAddr64, "gdb-addr64", conf.GdbAddr64, "Send 64 bit sign extended addresses to the stub.")
	fs.StringVar(&tablesFile, "tables", conf.TablesFile, "YAML file overriding the overlay name tables, reloaded when it changes.")
	fs.IntVar(&bufferSize, "buffer-size", conf.BufferSize, "Largest request accepted from a client, 0 selects the default.")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func serveCmd(cmd *cobra.Command, args []string) {
	os.Exit(serve(conf))
}

func serve(conf *config.Config) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	resolver, reloader, err := loadResolver(tablesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if reloader != nil {
		defer reloader.Close()
	}

	h, hostDone, err := newHost(backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start backend: %v\n", err)
		return 1
	}
	if c, ok := h.(interface{ Close() error }); ok {
		defer c.Close()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Printf("couldn't start listener: %s\n", err)
		return 1
	}

	var bases [overlay.NumCategories]uint32
	copy(bases[:], conf.TableBases)

	server := zdb.NewServer(&service.Config{
		Listener:   listener,
		Host:       h,
		Resolver:   resolver,
		TableBases: bases,
		BufferSize: bufferSize,
	})
	if err := server.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer server.Stop()

	if waitForStopSignal(hostDone) == stopHostLost {
		fmt.Fprintln(os.Stderr, "connection to the gdb stub lost")
		return 1
	}
	return 0
}

// loadResolver returns the overlay resolver for the tables in path, or for
// the built in tables if path is empty. The returned Reloader keeps the
// resolver in sync with the file.
func loadResolver(path string) (*overlay.Resolver, *overlay.Reloader, error) {
	if path == "" {
		return overlay.NewResolver(overlay.DefaultTables()), nil, nil
	}
	tables, err := overlay.LoadTables(path)
	if err != nil {
		return nil, nil, err
	}
	resolver := overlay.NewResolver(tables)
	reloader, err := overlay.WatchTables(path, resolver, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("could not watch %s: %v", path, err)
	}
	return resolver, reloader, nil
}

// newHost returns the host for the selected backend. The returned channel
// is closed if the host stops working, it is nil for hosts that can not.
func newHost(backend string) (host.Host, <-chan struct{}, error) {
	switch backend {
	case "sim", "":
		return memhost.New(), nil, nil
	case "gdb":
		h, err := gdbserial.Dial(gdbserial.Config{
			Addr:     gdbAddr,
			PCRegnum: gdbPCRegnum,
			Addr64:   gdbAddr64,
		})
		if err != nil {
			return nil, nil, err
		}
		return h, h.Done(), nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}

func connectCmd(cmd *cobra.Command, args []string) {
	a := orDefault(conf.Listen, defaultListen)
	if len(args) > 0 {
		a = args[0]
	}
	if a == "" {
		fmt.Fprint(os.Stderr, "An empty address was provided. You must provide an address as the first argument.\n")
		os.Exit(1)
	}
	os.Exit(connect(a, nil, conf))
}

func connect(addr string, clientConn net.Conn, conf *config.Config) int {
	var syms *symbols.Table
	if mapFile != "" {
		var err error
		syms, err = symbols.Load(mapFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v, functions must be given with their address\n", err)
		}
	}

	var client *zdb.Client
	if clientConn != nil {
		client = zdb.NewClientFromConn(clientConn)
	} else {
		var err error
		client, err = zdb.NewClient(addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not connect to %s: %v\n", addr, err)
			return 1
		}
	}

	if len(conf.TableBases) == int(overlay.NumCategories) {
		var bases [overlay.NumCategories]uint32
		copy(bases[:], conf.TableBases)
		if err := client.SetTableLocations(bases); err != nil {
			fmt.Fprintf(os.Stderr, "could not set table locations: %v\n", err)
		}
	}

	term := terminal.New(client, conf, syms)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		fmt.Println(err)
	}
	return status
}
