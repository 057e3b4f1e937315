// Package vm orchestrates one compose run: prepare the instance,
// launch the machine, drive the boot script, and always tear down
// whatever was launched.
package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/javanstorm/qemu-compose/internal/boot"
	"github.com/javanstorm/qemu-compose/internal/config"
	"github.com/javanstorm/qemu-compose/internal/console"
	"github.com/javanstorm/qemu-compose/internal/httpserve"
	"github.com/javanstorm/qemu-compose/internal/image"
	"github.com/javanstorm/qemu-compose/internal/lisp"
	"github.com/javanstorm/qemu-compose/internal/qmp"
	"github.com/javanstorm/qemu-compose/internal/store"
	"github.com/javanstorm/qemu-compose/pkg/qemu"
)

// gatewayIP is where the guest reaches the host on the user network.
const gatewayIP = "10.0.2.2"

// teardownTimeout bounds the graceful quit before the process is
// killed.
const teardownTimeout = 10 * time.Second

// machine is the slice of pkg/qemu the orchestrator needs; tests
// substitute a fake.
type machine interface {
	Console() net.Conn
	QMP() net.Conn
	Pid() int
	Wait() <-chan error
	Kill() error
}

// Options configure one run of a compose project.
type Options struct {
	Compose *config.Compose
	Store   *store.Store

	// ProjectDir is the directory of the compose file; scripts run
	// there and it becomes the CWD binding.
	ProjectDir string

	// Name overrides the compose file's VM name.
	Name string

	// BootTimeout is the default budget for read_until steps.
	BootTimeout time.Duration

	Log    *slog.Logger
	Stdout io.Writer

	// Term is the controlling terminal, nil when stdin is not a TTY.
	Term *console.Terminal

	// InstanceLogger, when set, builds a logger that also records to
	// the instance's log file once its directory exists.
	InstanceLogger func(path string) (*slog.Logger, func() error, error)
}

// Orchestrator runs the lifecycle state machine for one VM.
type Orchestrator struct {
	opts       Options
	log        *slog.Logger
	newMachine func(context.Context, qemu.Config) (machine, error)

	mu    sync.Mutex
	phase Phase
}

// New builds an orchestrator for the given options.
func New(opts Options) *Orchestrator {
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &Orchestrator{
		opts:  opts,
		log:   opts.Log,
		phase: PhaseInit,
		newMachine: func(ctx context.Context, cfg qemu.Config) (machine, error) {
			return qemu.Launch(ctx, cfg)
		},
	}
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.log.Debug("phase", "phase", p.String())
}

// prepared holds everything the prepare phase allocates. Its close
// method releases resources that exist independently of the machine.
type prepared struct {
	vmid   string
	name   string
	cid    uint32
	dir    string
	env    map[string]string
	sshKey []byte

	// drives and imageArgs come from the compose file's image, when
	// one is named: one -drive per overlay plus the manifest's extra
	// arguments.
	drives    []string
	imageArgs []qemu.ArgBlock

	lock     *store.Lock
	http     *httpserve.Server
	logClose func() error
}

func (p *prepared) close(log *slog.Logger) {
	if p.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := p.http.Shutdown(ctx); err != nil {
			log.Warn("http_serve shutdown failed", "error", err)
		}
		cancel()
	}
	if p.lock != nil {
		if err := p.lock.Release(); err != nil {
			log.Warn("failed to unlock instance dir", "error", err)
		}
	}
	if p.logClose != nil {
		p.logClose()
	}
}

// launched bundles the running machine with its console and control
// clients.
type launched struct {
	machine machine
	driver  *console.Driver
	qmp     *qmp.Client
}

// Up runs the whole lifecycle: prepare, launch, boot, interact,
// after_script, teardown. Once the machine has launched, teardown runs
// exactly once no matter how the run ends.
func (o *Orchestrator) Up(ctx context.Context) (err error) {
	o.setPhase(PhasePreparing)
	prep, err := o.prepare(ctx)
	if err != nil {
		o.setPhase(PhaseFailed)
		return err
	}
	defer prep.close(o.log)

	o.setPhase(PhaseLaunching)
	l, err := o.launch(ctx, prep)
	if err != nil {
		o.setPhase(PhaseFailed)
		return err
	}
	defer func() {
		o.teardown(l)
		if err != nil {
			o.setPhase(PhaseFailed)
		} else {
			o.setPhase(PhaseDone)
		}
	}()

	// The user's keystrokes flow to the guest during scripted boot as
	// well; pressing Ctrl+] twice detaches.
	var escaped <-chan struct{}
	if t := o.opts.Term; t != nil {
		restore, rawErr := t.SetRaw()
		if rawErr != nil {
			o.log.Warn("cannot enter raw mode", "error", rawErr)
		} else {
			defer restore()
		}
		escaped = t.Feed(l.driver).Escaped()
	}

	interact := true
	if cmds := o.opts.Compose.BootCommands; len(cmds) > 0 {
		o.setPhase(PhaseBootScripted)
		interact, err = o.runBoot(ctx, l, prep, cmds)
		if err != nil {
			return err
		}
	}

	o.setPhase(PhaseReady)
	if interact {
		o.log.Info("console attached", "detach", "Ctrl+] twice")
		if err = l.driver.Interact(ctx, escaped); err != nil && err != console.ErrDetached {
			return err
		}
		err = nil
	}

	if lines := o.opts.Compose.AfterScript; len(lines) > 0 {
		if err = o.runScript(ctx, "after_script", lines, prep.env); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) prepare(ctx context.Context) (*prepared, error) {
	c := o.opts.Compose
	st := o.opts.Store

	requested := o.opts.Name
	if requested == "" {
		requested = c.Name
	}
	name, err := st.ResolveName(requested)
	if err != nil {
		return nil, err
	}

	cid, err := st.NextCID()
	if err != nil {
		return nil, err
	}

	vmid, err := st.NewVMID()
	if err != nil {
		return nil, err
	}

	p := &prepared{vmid: vmid, name: name, cid: cid, dir: st.InstanceDir(vmid)}
	ok := false
	defer func() {
		if !ok {
			p.close(o.log)
		}
	}()

	if o.opts.InstanceLogger != nil {
		log, closer, err := o.opts.InstanceLogger(filepath.Join(p.dir, "qemu-compose.log"))
		if err != nil {
			return nil, err
		}
		o.log = log
		p.logClose = closer
	}

	// Lock before anything launches so pruning cannot race a live
	// instance.
	if p.lock, err = store.AcquireLock(p.dir); err != nil {
		return nil, err
	}

	cwd, err := filepath.Abs(o.opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(cwd); err != nil {
		return nil, fmt.Errorf("chdir %s: %w", cwd, err)
	}

	cols, rows := 80, 24
	if t := o.opts.Term; t != nil {
		if c, r, err := t.Size(); err == nil {
			cols, rows = c, r
		}
	}

	imageRoot, err := st.ImageRoot()
	if err != nil {
		return nil, err
	}
	instanceRoot, err := st.InstanceRoot()
	if err != nil {
		return nil, err
	}

	env := map[string]string{
		"CWD":           cwd,
		"GATEWAY_IP":    gatewayIP,
		"TERM_ROWS":     strconv.Itoa(rows),
		"TERM_COLS":     strconv.Itoa(cols),
		"ID":            vmid,
		"STORAGE_PATH":  st.DataDir(),
		"IMAGE_ROOT":    imageRoot,
		"INSTANCE_ROOT": instanceRoot,
	}

	if h := c.HTTPServe; h != nil {
		if p.http, err = o.startHTTP(h, env); err != nil {
			return nil, err
		}
		env["HTTP_PORT"] = strconv.Itoa(p.http.Port())
		accessIP := h.AccessIP
		if accessIP == "" {
			accessIP = gatewayIP
		} else if accessIP, err = config.Expand(accessIP, env); err != nil {
			return nil, fmt.Errorf("http_serve.access_ip: %w", err)
		}
		env["HTTP_HOST"] = accessIP
	}

	// Compose env values may reference any of the injected bindings,
	// including HTTP_HOST and HTTP_PORT.
	userEnv, err := config.ExpandAll(c.Env, env)
	if err != nil {
		return nil, err
	}
	for k, v := range userEnv {
		env[k] = v
	}
	p.env = env

	if c.Image != "" {
		entry, err := image.Resolve(imageRoot, c.Image)
		if err != nil {
			return nil, err
		}
		o.log.Info("using image", "id", entry.Manifest.ShortID(), "image", c.Image)
		if p.drives, err = image.PrepareDisks(ctx, entry, p.dir); err != nil {
			return nil, err
		}
		if p.imageArgs, err = manifestArgs(entry.Manifest.QemuArgs, env, p.dir); err != nil {
			return nil, err
		}
	}

	if lines := c.BeforeScript; len(lines) > 0 {
		if err := o.runScript(ctx, "before_script", lines, env); err != nil {
			return nil, err
		}
	}

	if p.sshKey, err = st.PrepareSSHKey(vmid); err != nil {
		return nil, err
	}

	ok = true
	return p, nil
}

func (o *Orchestrator) startHTTP(h *config.HTTPServe, env map[string]string) (*httpserve.Server, error) {
	listen, port, root, err := httpParams(h, env)
	if err != nil {
		return nil, err
	}
	return httpserve.Start(listen, port, root, o.log)
}

// httpParams resolves the file server's listen address, port, and root
// directory, expanding placeholders in the configured values. An
// omitted port means 8888; an explicit 0 asks the kernel for an
// ephemeral one.
func httpParams(h *config.HTTPServe, env map[string]string) (listen string, port int, root string, err error) {
	listen = h.Listen
	if listen == "" {
		listen = "0.0.0.0"
	} else if listen, err = config.Expand(listen, env); err != nil {
		return "", 0, "", fmt.Errorf("http_serve.listen: %w", err)
	}

	port = 8888
	if h.Port != nil {
		port = *h.Port
	}

	root = h.Root
	if root == "" {
		root = env["CWD"]
	} else if root, err = config.Expand(root, env); err != nil {
		return "", 0, "", fmt.Errorf("http_serve.root: %w", err)
	}
	return listen, port, root, nil
}

func (o *Orchestrator) launch(ctx context.Context, p *prepared) (*launched, error) {
	c := o.opts.Compose

	args, err := expandArgs(c.QemuArgs, p.env)
	if err != nil {
		return nil, err
	}
	for _, d := range p.drives {
		args = append(args, qemu.ArgBlock{Flag: "drive", Value: d})
	}
	args = append(args, p.imageArgs...)

	cfg := qemu.Config{
		Binary:           c.Binary,
		Name:             p.name,
		Network:          c.Network,
		Args:             args,
		GuestCID:         p.cid,
		SSHAuthorizedKey: p.sshKey,
		RuntimeDir:       p.dir,
	}

	m, err := o.newMachine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	driver := console.NewDriver(m.Console(), o.opts.Stdout, o.log)
	client := qmp.NewClient(m.QMP(), o.log)
	client.OnEvent(func(ev qmp.Event) {
		o.log.Info("guest event", "event", ev.Name)
	})
	if err := client.Negotiate(ctx); err != nil {
		m.Kill()
		<-m.Wait()
		return nil, fmt.Errorf("control protocol: %w", err)
	}
	g := client.Greeting()
	o.log.Info("machine launched",
		"vmid", p.vmid, "name", p.name, "pid", m.Pid(),
		"qemu", fmt.Sprintf("%d.%d.%d", g.Version.QEMU.Major, g.Version.QEMU.Minor, g.Version.QEMU.Micro))

	if err := o.opts.Store.WriteMeta(p.vmid, store.Meta{Name: p.name, Pid: m.Pid(), CID: p.cid}); err != nil {
		o.log.Warn("failed to write instance metadata", "error", err)
	}
	return &launched{machine: m, driver: driver, qmp: client}, nil
}

func (o *Orchestrator) runBoot(ctx context.Context, l *launched, p *prepared, cmds []any) (bool, error) {
	steps, err := boot.ParseSteps(cmds)
	if err != nil {
		return false, err
	}

	runner := &boot.Runner{
		Console: l.driver,
		Env:     bootEnv(p.env),
		Timeout: o.opts.BootTimeout,
		Log:     o.log,
	}
	return runner.Run(ctx, steps)
}

// numericEnv names the injected bindings that boot scripts consume as
// numbers. Everything else stays a string, so zero-padded values like
// a password of "007" or a vmid that happens to parse as a float keep
// their exact text.
var numericEnv = map[string]bool{
	"TERM_ROWS": true,
	"TERM_COLS": true,
	"HTTP_PORT": true,
}

// bootEnv builds the boot-script environment: the key token table
// first, then the run bindings.
func bootEnv(vars map[string]string) *lisp.Env {
	env := lisp.NewEnv()
	for name, seq := range console.Keys() {
		env.BindString(name, seq)
	}
	for k, v := range vars {
		if numericEnv[k] {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				env.BindNumber(k, f)
				continue
			}
		}
		env.BindString(k, v)
	}
	return env
}

// teardown quits the guest gracefully, killing it when it does not
// exit in time. It runs on a fresh context so cancellation of the run
// cannot skip it.
func (o *Orchestrator) teardown(l *launched) {
	o.setPhase(PhaseTearingDown)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if _, err := l.qmp.Execute(ctx, "quit", nil); err != nil {
		o.log.Debug("graceful quit failed", "error", err)
	}
	select {
	case err := <-l.machine.Wait():
		o.log.Debug("machine exited", "error", err)
	case <-ctx.Done():
		o.log.Warn("machine did not quit, killing")
		if err := l.machine.Kill(); err != nil {
			o.log.Warn("kill failed", "error", err)
		}
		<-l.machine.Wait()
	}
	l.qmp.Close()
}

// manifestArgs converts an image manifest's raw qemu argument tokens
// into flag/value blocks, expanding placeholders like {INSTANCE_DIR}.
func manifestArgs(tokens []string, env map[string]string, instanceDir string) ([]qemu.ArgBlock, error) {
	scoped := make(map[string]string, len(env)+1)
	for k, v := range env {
		scoped[k] = v
	}
	scoped["INSTANCE_DIR"] = instanceDir

	var out []qemu.ArgBlock
	for _, tok := range tokens {
		expanded, err := config.Expand(tok, scoped)
		if err != nil {
			return nil, fmt.Errorf("image qemu_args %q: %w", tok, err)
		}
		switch {
		case strings.HasPrefix(expanded, "-"):
			out = append(out, qemu.ArgBlock{Flag: strings.TrimPrefix(expanded, "-")})
		case len(out) > 0 && out[len(out)-1].Value == "":
			out[len(out)-1].Value = expanded
		default:
			return nil, fmt.Errorf("image qemu_args: value %q has no flag", expanded)
		}
	}
	return out, nil
}

// expandArgs flattens compose qemu_args blocks into flag/value pairs,
// expanding placeholders in the values.
func expandArgs(blocks []map[string]any, env map[string]string) ([]qemu.ArgBlock, error) {
	var out []qemu.ArgBlock
	for _, block := range blocks {
		for flag, raw := range block {
			var val string
			switch v := raw.(type) {
			case nil:
				val = ""
			case string:
				var err error
				if val, err = config.Expand(v, env); err != nil {
					return nil, fmt.Errorf("qemu_args %s: %w", flag, err)
				}
			default:
				val = fmt.Sprintf("%v", v)
			}
			out = append(out, qemu.ArgBlock{Flag: flag, Value: val})
		}
	}
	return out, nil
}
