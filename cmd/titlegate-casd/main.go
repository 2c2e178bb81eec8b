package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"xdao.co/titlegate/logger"
	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/casconfig"
	"xdao.co/titlegate/storage/casregistry"
	"xdao.co/titlegate/storage/grpccas"

	_ "xdao.co/titlegate/storage/ipfs"
	_ "xdao.co/titlegate/storage/localfs"
)

type options []string

func (o *options) String() string { return strings.Join(*o, ",") }

func (o *options) Set(v string) error {
	if k, _, ok := strings.Cut(v, "="); !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*o = append(*o, v)
	return nil
}

func (o options) Map() map[string]string {
	m := make(map[string]string, len(o))
	for _, s := range o {
		k, v, _ := strings.Cut(s, "=")
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}

func main() {
	fs := flag.NewFlagSet("titlegate-casd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	configPath := fs.String("config", "", "content_store YAML (overrides --backend)")
	tlsCert := fs.String("tls-cert", "", "server certificate PEM (enables TLS)")
	tlsKey := fs.String("tls-key", "", "server private key PEM")
	logMode := fs.String("log-mode", "development", "development|production")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	var opts options
	fs.Var(&opts, "opt", "Backend option key=value (repeatable)")

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	log, err := logger.New(*logMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	var (
		cas     storage.CAS
		closeFn func() error
	)
	if *configPath != "" {
		cfg, err := casconfig.LoadFile(*configPath)
		if err != nil {
			log.Fatal("load content store config", "path", *configPath, "error", err)
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon, "")
	} else {
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageDaemon, opts.Map())
	}
	if err != nil {
		log.Fatal("open backend", "backend", *backend, "error", err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	var serverOpts []grpc.ServerOption
	if *tlsCert != "" || *tlsKey != "" {
		creds, err := credentials.NewServerTLSFromFile(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatal("load TLS keypair", "error", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal("listen", "addr", *listen, "error", err)
	}
	defer lis.Close()

	s := grpc.NewServer(serverOpts...)
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})
	hs := health.NewServer()
	hs.SetServingStatus(grpccas.CAS_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		hs.Shutdown()
		s.GracefulStop()
	}()

	log.Info("listening", "addr", lis.Addr().String(), "backend", *backend, "tls", *tlsCert != "")
	if err := s.Serve(lis); err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
}
