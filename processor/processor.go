package processor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	Reload   = "reload"
	Shutdown = "shutdown"
)

type operation struct {
	name string
	call func() error
}

type Processor struct {
	ForceShutdownTimeout time.Duration // force shudown timeout
	rChan                chan os.Signal
	// shutOps run one by one in registration order
	shutOps   []operation
	reloadOps []operation
	mu        sync.Mutex
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
	ctx       context.Context
	stop      context.CancelFunc
}

// New - creates new processor
func New(timeout time.Duration, log *zap.SugaredLogger) *Processor {
	ctx, stop := context.WithCancel(context.Background())
	return &Processor{
		ForceShutdownTimeout: timeout,
		rChan:                make(chan os.Signal, 1),
		log:                  log,
		ctx:                  ctx,
		stop:                 stop,
	}
}

// Run assign proper signals and starts processing
func (p *Processor) Run() error {
	ctx, stop := signal.NotifyContext(p.ctx, syscall.SIGINT, syscall.SIGTERM)
	signal.Notify(p.rChan, syscall.SIGHUP)
	ctxReload, cancel := context.WithCancel(context.Background())
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.processReloadSignal(ctxReload, stop)
	}()
	go func() {
		defer p.wg.Done()
		p.processStopSignal(ctx, cancel)
	}()
	return nil
}

// Stop starts the shutdown sequence as if SIGTERM was received
func (p *Processor) Stop() {
	p.stop()
}

// processReloadSignal reload all operations assigned to Reload
func (p *Processor) processReloadSignal(ctx context.Context, cancel context.CancelFunc) {
	defer signal.Stop(p.rChan)
	for {
		select {
		case <-ctx.Done():
			p.log.Infof("shutdown reload")
			cancel() // release signal context of processStopSignal
			return
		case <-p.rChan:
			p.callConcurrent(p.operations(Reload), Reload)
		}
	}
}

// processStopSignal execute Stop and force exit after ForceShutdownTimeout timeout passes
func (p *Processor) processStopSignal(ctx context.Context, cancel context.CancelFunc) {
	<-ctx.Done()
	tF := time.AfterFunc(p.ForceShutdownTimeout, func() {
		p.log.Warnf("timeout %d ms has been elapsed, force exit, umount fs manually", p.ForceShutdownTimeout.Milliseconds())
		os.Exit(1)
	})
	defer tF.Stop()
	p.Shutdown()
	cancel() // cancel processReloadSignal
}

func (p *Processor) operations(process string) []operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if process == Shutdown {
		return append([]operation(nil), p.shutOps...)
	}
	return append([]operation(nil), p.reloadOps...)
}

func (p *Processor) call(op operation, process string) {
	if err := op.call(); err != nil {
		p.log.Warnf("%s %s: failed (%s)", process, op.name, err.Error())
		return
	}
	p.log.Infof("%s %s: succeeded", process, op.name)
}

// callConcurrent execute operations of process at once
func (p *Processor) callConcurrent(ops []operation, process string) {
	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		op := op
		go func() {
			defer wg.Done()
			p.call(op, process)
		}()
	}
	wg.Wait()
	p.log.Infof("%s sequence completed", process)
}

// Register register shutdown and reload operation
func (p *Processor) Register(process, operationName string, operationFunction func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	op := operation{name: operationName, call: operationFunction}
	switch process {
	case Shutdown:
		p.shutOps = append(p.shutOps, op)
	case Reload:
		p.reloadOps = append(p.reloadOps, op)
	default:
		return fmt.Errorf("%s process unknown", process)
	}
	return nil
}

// Shutdown - runs shutdown operations in registration order; a failing one does
// not stop the rest
func (p *Processor) Shutdown() {
	for _, op := range p.operations(Shutdown) {
		p.call(op, Shutdown)
	}
	p.log.Infof("%s sequence completed", Shutdown)
}

// Wait blocks until the shutdown sequence finished
func (p *Processor) Wait() {
	p.wg.Wait()
}
