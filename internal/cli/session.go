package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/errreport"
	"github.com/agentx-labs/extmgr/internal/eventloop"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/service"
	"github.com/agentx-labs/extmgr/internal/store"
	"github.com/agentx-labs/extmgr/internal/userdata"
)

// session wires a service to an event loop that the command drains itself.
type session struct {
	svc  *service.Service
	loop *eventloop.Loop
}

func openStore() (*store.Store, error) {
	root, err := userdata.ResolveInstallRoot(env.settings.InstallRoot)
	if err != nil {
		return nil, err
	}
	if err := userdata.EnsureInstallRoot(root); err != nil {
		return nil, err
	}
	st := store.New(root,
		store.WithLogger(env.logger.Named("store")),
		store.WithIgnore(env.settings.Scan.Ignore...),
	)
	if err := st.CleanStaging(); err != nil {
		env.logger.Warn("cleaning staging area", zap.String("root", root), zap.Error(err))
	}
	return st, nil
}

func newSession() (*session, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	loop := eventloop.New()
	reporter := errreport.New()
	svc := service.New(st, loop,
		service.WithReporter(reporter),
		service.WithLogger(env.logger.Named("service")),
		service.WithMetrics(env.metrics),
		service.WithWorkers(env.settings.Workers),
	)
	return &session{svc: svc, loop: loop}, nil
}

// settle waits for every submitted request and runs their callbacks.
func (s *session) settle() {
	s.svc.Wait()
	s.loop.RunPending()
}

// finish closes the service, prints the accumulated errors to w and returns
// an error when any request failed.
func (s *session) finish(w io.Writer) error {
	s.svc.Close()
	s.loop.RunPending()

	errs := s.svc.Reporter().Errors()
	for _, msg := range errs {
		fmt.Fprintln(w, msg)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d request(s) failed", len(errs))
	}
	return nil
}

// printSink writes every outcome to out and collects loaded extensions.
type printSink struct {
	out    io.Writer
	loaded []*extension.Extension
	quiet  bool
}

func (p *printSink) OnExtensionsLoaded(exts []*extension.Extension) {
	p.loaded = append(p.loaded, exts...)
	if p.quiet {
		return
	}
	for _, e := range exts {
		fmt.Fprintf(p.out, "Loaded %s %s (%s)\n", e.Name(), e.VersionString(), e.ID())
	}
}

func (p *printSink) OnExtensionInstalled(e *extension.Extension, isUpgrade bool) {
	verb := "Installed"
	if isUpgrade {
		verb = "Upgraded"
	}
	fmt.Fprintf(p.out, "%s %s %s (%s)\n", verb, e.Name(), e.VersionString(), e.ID())
}

func (p *printSink) OnExtensionVersionReinstalled(id string) {
	fmt.Fprintf(p.out, "Reinstalled %s (version unchanged)\n", id)
}

func (p *printSink) OnExtensionUninstalled(id string, err error) {
	if err == nil {
		fmt.Fprintf(p.out, "Removed %s\n", id)
	}
}
