package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/javanstorm/qemu-compose/internal/config"
	"github.com/javanstorm/qemu-compose/internal/console"
	"github.com/javanstorm/qemu-compose/internal/logging"
	"github.com/javanstorm/qemu-compose/internal/store"
	"github.com/javanstorm/qemu-compose/internal/timing"
	"github.com/javanstorm/qemu-compose/internal/vm"
	"github.com/spf13/cobra"
)

var (
	upFile       string
	upProjectDir string
	upName       string
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create and boot the VM described by the compose file",
	Long: `Reads qemu-compose.yml from the project directory, launches the
machine it describes, runs its boot script against the serial console,
and tears the machine down when the session ends.

While the boot script runs your keystrokes still reach the guest.
Press Ctrl+] twice to detach.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Global

		level, err := logging.ParseLevel(settings.LogLevel)
		if err != nil {
			return err
		}
		log := logging.New(os.Stderr, level)

		var timer *timing.Timer
		if settings.Timing {
			timer = timing.New()
		}

		path := upFile
		if path == "" {
			dir := upProjectDir
			if dir == "" {
				dir = "."
			}
			if path, err = config.FindCompose(dir); err != nil {
				return err
			}
		}
		compose, err := config.LoadCompose(path)
		if err != nil {
			return err
		}
		projectDir := upProjectDir
		if projectDir == "" {
			projectDir = filepath.Dir(path)
		}
		timer.Mark("load config")

		st, err := openStore(settings)
		if err != nil {
			return err
		}
		timer.Mark("open store")

		bootTimeout := time.Duration(settings.BootTimeout * float64(time.Second))
		if compose.BootTimeout > 0 {
			bootTimeout = time.Duration(compose.BootTimeout * float64(time.Second))
		}

		var term *console.Terminal
		var stdout io.Writer = os.Stdout
		if console.IsTTY() {
			term = console.CurrentTerminal()
			stdout = term.Stdout()
		}

		o := vm.New(vm.Options{
			Compose:     compose,
			Store:       st,
			ProjectDir:  projectDir,
			Name:        upName,
			BootTimeout: bootTimeout,
			Log:         log,
			Stdout:      stdout,
			Term:        term,
			InstanceLogger: func(logPath string) (*slog.Logger, func() error, error) {
				return logging.WithFile(os.Stderr, level, logPath)
			},
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		upErr := o.Up(ctx)
		timer.Mark("run")
		timer.Report(os.Stderr)
		return upErr
	},
}

func openStore(settings *config.Settings) (*store.Store, error) {
	if settings.StorePath != "" {
		return store.OpenAt(settings.StorePath)
	}
	return store.Open()
}

func init() {
	upCmd.Flags().StringVarP(&upFile, "file", "f", "", "Compose file path (default: qemu-compose.yml in the project directory)")
	upCmd.Flags().StringVar(&upProjectDir, "project-directory", "", "Project directory (default: the compose file's directory)")
	upCmd.Flags().StringVar(&upName, "name", "", "VM name (default: the compose file's name, or generated)")
}
