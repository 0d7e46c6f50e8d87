package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/jinzhu/copier"
	"github.com/rarydzu/monodisk/monodisk"
	"github.com/rarydzu/monodisk/monodisk/config"
	"github.com/rarydzu/monodisk/monofs"
	"github.com/rarydzu/monodisk/monoserver/session"
	statserver "github.com/rarydzu/monodisk/monoserver/stat"
	"github.com/rarydzu/monodisk/processor"
	hostdisk "github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var ErrHostSpace = errors.New("not enough free space on host")

type Worker struct {
	active bool
	sync.RWMutex
	Processor  *processor.Processor
	log        *zap.SugaredLogger
	cfg        *config.Config
	disk       *monodisk.Disk
	session    *session.Server
	wsServer   *http.Server
	grpcServer *grpc.Server
	statLis    net.Listener
	fsServer   fuse.Server
	fusemfs    *fuse.MountedFileSystem
	group      *errgroup.Group
	cancel     context.CancelFunc
}

func New(cfg *config.Config, log *zap.SugaredLogger) (*Worker, error) {
	w := &Worker{
		log: log,
		cfg: &config.Config{},
	}
	if err := copier.CopyWithOption(w.cfg, cfg, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	if err := w.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := w.preflight(); err != nil {
		return nil, err
	}
	d, err := monodisk.Open(w.cfg, log)
	if err != nil {
		return nil, err
	}
	w.disk = d
	if err := w.listen(); err != nil {
		w.closeListeners()
		d.Close()
		return nil, err
	}
	return w, nil
}

// preflight checks that the host can hold a disk file that does not exist yet
func (w *Worker) preflight() error {
	if info, err := os.Stat(w.cfg.Path); err == nil && info.Size() > 0 {
		return nil
	}
	usage, err := hostdisk.Usage(filepath.Dir(w.cfg.Path))
	if err != nil {
		return fmt.Errorf("host usage of %s: %w", filepath.Dir(w.cfg.Path), err)
	}
	need := uint64(w.cfg.TotalSize) + w.cfg.MinHostFree
	if usage.Free < need {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrHostSpace, usage.Path, usage.Free, need)
	}
	w.log.Debugf("host %s: %d bytes free, disk needs %d", usage.Path, usage.Free, w.cfg.TotalSize)
	return nil
}

// listen opens the sockets of every configured surface
func (w *Worker) listen() error {
	var err error
	handler := session.NewHandler(w.disk, w.log)
	w.session, err = session.Listen(w.cfg.ListenAddress, handler, w.log)
	if err != nil {
		return err
	}
	if w.cfg.WebsocketAddress != "" {
		w.wsServer = session.NewWebsocketServer(w.cfg.WebsocketAddress, handler, w.log)
	}
	if w.cfg.StatAddress != "" {
		w.statLis, err = net.Listen("tcp", w.cfg.StatAddress)
		if err != nil {
			return err
		}
		w.grpcServer = grpc.NewServer()
		statserver.Register(w.grpcServer, statserver.New(w.cfg.Name, w.disk, w.log))
	}
	if w.cfg.Mountpoint != "" {
		fs, err := monofs.NewMonoFS(w.cfg.Name, w.disk, timeutil.RealClock(), w.log)
		if err != nil {
			return err
		}
		w.fsServer = monofs.NewMonoFuseFS(fs)
	}
	return nil
}

func (w *Worker) closeListeners() {
	if w.session != nil {
		w.session.Close()
	}
	if w.statLis != nil {
		w.statLis.Close()
	}
}

// SessionAddr returns the address of the line protocol listener
func (w *Worker) SessionAddr() net.Addr {
	return w.session.Addr()
}

// StatAddr returns the address of the stat listener, nil when disabled
func (w *Worker) StatAddr() net.Addr {
	if w.statLis == nil {
		return nil
	}
	return w.statLis.Addr()
}

func (w *Worker) fuseConfig() *fuse.MountConfig {
	fuseCfg := &fuse.MountConfig{
		ReadOnly:    w.cfg.ReadOnly,
		ErrorLogger: zap.NewStdLog(w.log.Desugar()),
		FSName:      w.cfg.Name,
	}
	if w.cfg.FuseDebug {
		fuseCfg.DebugLogger = zap.NewStdLog(w.log.Desugar())
	}
	return fuseCfg
}

func (w *Worker) Start() error {
	w.Lock()
	defer w.Unlock()
	if w.active {
		return fmt.Errorf("Worker already active")
	}
	w.active = true
	w.Processor = processor.New(w.cfg.ShutdownTimeout, w.log)
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	w.group = group

	group.Go(func() error {
		return w.session.Serve(gctx)
	})
	if w.wsServer != nil {
		group.Go(func() error {
			w.log.Infof("websocket listening on %s", w.wsServer.Addr)
			if err := w.wsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if w.grpcServer != nil {
		group.Go(func() error {
			w.log.Infof("stat server listening on %s", w.statLis.Addr())
			return w.grpcServer.Serve(w.statLis)
		})
	}
	if w.fsServer != nil {
		mfs, err := fuse.Mount(w.cfg.Mountpoint, w.fsServer, w.fuseConfig())
		if err != nil {
			cancel()
			return fmt.Errorf("mount %s: %w", w.cfg.Mountpoint, err)
		}
		w.fusemfs = mfs
		group.Go(func() error {
			return mfs.Join(context.Background())
		})
	}
	// a failing surface takes the others down
	go func() {
		<-gctx.Done()
		w.Processor.Stop()
	}()

	ops := []struct {
		name string
		call func() error
	}{
		{"session", w.session.Close},
		{"websocket", w.stopWebsocket},
		{"stat", w.stopStat},
		{"filesystem", w.Umount},
		{"disk", w.disk.Close},
		{"surfaces", w.stopGroup},
	}
	for _, op := range ops {
		if err := w.Processor.Register(processor.Shutdown, op.name, op.call); err != nil {
			return err
		}
	}
	if err := w.Processor.Register(processor.Reload, "disk", w.disk.Sync); err != nil {
		return err
	}
	return w.Processor.Run()
}

func (w *Worker) stopWebsocket() error {
	if w.wsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout/2)
	defer cancel()
	return w.wsServer.Shutdown(ctx)
}

func (w *Worker) stopStat() error {
	if w.grpcServer != nil {
		w.grpcServer.GracefulStop()
	}
	return nil
}

func (w *Worker) stopGroup() error {
	w.cancel()
	return nil
}

func (w *Worker) Umount() error {
	if w.fusemfs == nil {
		return nil
	}
	tStart := time.Now()
	delay := 10 * time.Millisecond
	for {
		if time.Since(tStart) > w.cfg.ShutdownTimeout/2 {
			w.log.Infof("Timeout exceeded; killing processes")
			if err := w.Kill(); err != nil {
				w.log.Errorf("error killing processes: %v", err)
			}
		}
		err := fuse.Unmount(w.cfg.Mountpoint)
		if err == nil {
			return err
		}
		if strings.Contains(err.Error(), "resource busy") {
			w.log.Infof("Resource busy error while unmounting; trying again")
			time.Sleep(delay)
			delay = time.Duration(1.3 * float64(delay))
			continue
		}
		return fmt.Errorf("unmount (%s): %v", w.cfg.Mountpoint, err)
	}
}

// Kill processes holding files under the mount point
func (w *Worker) Kill() error {
	myPid := os.Getpid()
	processes, err := process.Processes()
	if err != nil {
		return err
	}
	for _, p := range processes {
		if p.Pid == int32(myPid) {
			continue
		}
		openFiles, err := p.OpenFiles()
		if err != nil {
			continue
		}
		for _, f := range openFiles {
			if strings.HasPrefix(f.Path, w.cfg.Mountpoint) {
				w.log.Infof("Killing process %d", p.Pid)
				if err := p.Kill(); err != nil {
					w.log.Errorf("error killing process %d: %v", p.Pid, err)
				}
				break
			}
		}
	}
	return nil
}

// Wait blocks until shutdown finished and returns the first surface failure
func (w *Worker) Wait() error {
	w.Processor.Wait()
	if err := w.group.Wait(); err != nil {
		w.log.Errorf("worker: %v", err)
		return err
	}
	return nil
}
